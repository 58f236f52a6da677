package dispatch

import (
	"strconv"
	"strings"
)

// Confirm/cancel vocabulary. Classification is a trimmed, lowercased
// membership test; it must stay total and side-effect-free.
var confirmTokens = map[string]struct{}{
	"1": {}, "confirm": {}, "confirmed": {}, "yes": {}, "y": {}, "ok": {},
	"okay": {}, "sure": {}, "yep": {}, "yeah": {},
	"oui": {}, "si": {}, "sí": {}, "ja": {}, "да": {}, "はい": {},
	"כן": {}, "מאשר": {}, "מאשרת": {}, "לאשר": {}, "אשר": {}, "אישור": {},
	"✔": {}, "✅": {}, "👍": {},
}

var cancelTokens = map[string]struct{}{
	"0": {}, "cancel": {}, "c": {}, "no": {}, "n": {}, "abort": {},
	"stop": {}, "nope": {}, "nah": {},
	"nein": {}, "non": {}, "нет": {}, "いいえ": {},
	"בטל": {}, "ביטול": {}, "לא": {}, "לבטל": {},
	"✖": {}, "❌": {}, "👎": {},
}

// IsConfirm reports whether text is an affirmative reply.
func IsConfirm(text string) bool {
	_, ok := confirmTokens[normalizeToken(text)]
	return ok
}

// IsCancel reports whether text is a negative reply.
func IsCancel(text string) bool {
	_, ok := cancelTokens[normalizeToken(text)]
	return ok
}

func normalizeToken(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// parseIndex reads a 1-based selection index from a reply.
func parseIndex(text string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, false
	}
	return n, true
}
