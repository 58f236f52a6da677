// Package transcribe turns inbound voice notes into text: it downloads the
// media from Twilio and runs it through the speech-to-text API. Downstream
// code only ever sees message text.
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const maxMediaBytes = 16 << 20

// Media is one downloaded attachment.
type Media struct {
	Bytes       []byte
	Filename    string
	ContentType string
}

// Fetcher downloads Twilio-hosted media. Twilio media URLs require the
// account's basic-auth credentials.
type Fetcher struct {
	accountSID string
	authToken  string
	client     *http.Client
}

func NewFetcher(accountSID, authToken string) *Fetcher {
	return &Fetcher{
		accountSID: accountSID,
		authToken:  authToken,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads the attachment at url and names it by content type.
func (f *Fetcher) Fetch(ctx context.Context, url, contentType string) (Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Media{}, err
	}
	req.SetBasicAuth(f.accountSID, f.authToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return Media{}, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Media{}, fmt.Errorf("fetch media: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return Media{}, fmt.Errorf("read media: %w", err)
	}
	return Media{
		Bytes:       data,
		Filename:    "note" + extensionFor(contentType),
		ContentType: contentType,
	}, nil
}

// extensionFor maps a media content type to a filename extension the
// transcription API recognizes. Unknown types default to ogg, which is what
// WhatsApp voice notes arrive as.
func extensionFor(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return ".mp3"
	case strings.Contains(ct, "aac"):
		return ".aac"
	case strings.Contains(ct, "3gpp"), strings.Contains(ct, "3gp"):
		return ".3gp"
	case strings.Contains(ct, "wav"):
		return ".wav"
	default:
		return ".ogg"
	}
}

// Transcriber converts audio to text via the speech-to-text API.
type Transcriber struct {
	client openai.Client
	model  string
}

func NewTranscriber(apiKey, model string) *Transcriber {
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	return &Transcriber{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Transcribe returns the spoken text in the media, trimmed.
func (t *Transcriber) Transcribe(ctx context.Context, m Media) (string, error) {
	res, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(t.model),
		File:  openai.File(bytes.NewReader(m.Bytes), m.Filename, m.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}
