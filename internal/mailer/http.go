package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// HTTPMailer sends mail through a JSON email API (Postmark/Resend style):
// POST {from, to, subject, text} with a bearer API key.
type HTTPMailer struct {
	APIKey     string
	Endpoint   string
	From       string
	HTTPClient *http.Client
}

// NewHTTPMailer returns a mailer posting to endpoint.
func NewHTTPMailer(apiKey, endpoint, from string) *HTTPMailer {
	return &HTTPMailer{
		APIKey:     apiKey,
		Endpoint:   endpoint,
		From:       from,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type httpPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// SendMagicLink posts the rendered message. Non-2xx responses are errors.
func (c *HTTPMailer) SendMagicLink(ctx context.Context, email, link string) error {
	if c.APIKey == "" || c.Endpoint == "" {
		return fmt.Errorf("mailer: HTTP API not configured")
	}
	msg := Render(email, link)
	raw, err := json.Marshal(httpPayload{From: c.From, To: msg.To, Subject: msg.Subject, Text: msg.Text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mailer: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
