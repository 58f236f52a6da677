// Package policy holds the log-safety rules: message bodies and sender keys
// are personal data, so anything that reaches a log line goes through here
// first.
package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// MaskUserKey shortens a sender key to a loggable form, keeping any channel
// prefix and the last three digits: "whatsapp:+15551234567" -> "whatsapp:***567".
func MaskUserKey(key string) string {
	prefix := ""
	rest := key
	if i := strings.Index(key, ":"); i >= 0 {
		prefix = key[:i+1]
		rest = key[i+1:]
	}
	if len(rest) <= 3 {
		return prefix + "***"
	}
	return prefix + "***" + rest[len(rest)-3:]
}
