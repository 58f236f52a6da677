// Package messenger delivers outbound replies. Two paths exist: embedding the
// reply in the webhook's TwiML response, or posting it through the Twilio
// REST API as a separate message.
package messenger

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.twilio.com/2010-04-01"

// Mode selects how replies leave the system.
type Mode string

const (
	// ModeTwiML answers inside the webhook response body.
	ModeTwiML Mode = "twiml"
	// ModeREST sends a standalone message via the REST API.
	ModeREST Mode = "rest"
)

// WriteTwiML writes a single-message TwiML document to w.
func WriteTwiML(w http.ResponseWriter, text string) error {
	var escaped strings.Builder
	if err := xml.EscapeText(&escaped, []byte(text)); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml")
	_, err := fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?><Response><Message>%s</Message></Response>", escaped.String())
	return err
}

// Client posts messages through the Twilio REST API.
type Client struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
}

func NewClient(accountSID, authToken, from string) *Client {
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL overrides the API endpoint. Used in tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

// Send delivers text to the given recipient, e.g. "whatsapp:+15551234567".
func (c *Client) Send(ctx context.Context, to, text string) error {
	form := url.Values{}
	form.Set("Body", text)
	form.Set("From", c.from)
	form.Set("To", to)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
