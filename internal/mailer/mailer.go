// Package mailer delivers magic-link emails.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Mailer delivers a magic link to email. Implementations must not log the link.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, link string) error
}

// Message is the rendered magic-link email.
type Message struct {
	To      string
	Subject string
	Text    string
}

const magicLinkSubject = "Your sign-in link"

// Render builds the magic-link message.
func Render(email, link string) Message {
	var b strings.Builder
	b.WriteString("Use the link below to sign in. It expires shortly and works once.\r\n\r\n")
	b.WriteString(link)
	b.WriteString("\r\n\r\nIf you did not request this, you can ignore this email.\r\n")
	return Message{To: email, Subject: magicLinkSubject, Text: b.String()}
}

// BuildLink appends email and token as query parameters to base.
func BuildLink(base, email, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("mailer: invalid magic link base URL: %w", err)
	}
	q := u.Query()
	q.Set("email", email)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LogMailer logs that a link was sent, without the link. For development.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendMagicLink(ctx context.Context, email, _ string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "magic link delivery skipped (log mailer)", "email", email)
	return nil
}
