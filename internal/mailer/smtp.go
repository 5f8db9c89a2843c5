package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// sendMailFunc matches smtp.SendMail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain-text mail through an SMTP relay using STARTTLS when offered.
type SMTPMailer struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
	send     sendMailFunc
}

// NewSMTPMailer returns a mailer for the relay at addr. Auth is PLAIN when username is set.
func NewSMTPMailer(addr, username, password, from string) *SMTPMailer {
	return &SMTPMailer{Addr: addr, Username: username, Password: password, From: from, send: smtp.SendMail}
}

// SendMagicLink renders and sends the message. ctx is checked before dialing only;
// net/smtp has no context support.
func (m *SMTPMailer) SendMagicLink(ctx context.Context, email, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(email, "\r\n") {
		return fmt.Errorf("mailer: invalid recipient")
	}
	var auth smtp.Auth
	if m.Username != "" {
		host, _, err := net.SplitHostPort(m.Addr)
		if err != nil {
			return fmt.Errorf("mailer: invalid SMTP address: %w", err)
		}
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}
	return m.send(m.Addr, auth, m.From, []string{email}, m.compose(Render(email, link)))
}

func (m *SMTPMailer) compose(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Text)
	return []byte(b.String())
}
