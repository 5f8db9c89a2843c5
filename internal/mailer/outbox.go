package mailer

import (
	"context"
	"sync"
	"time"
)

// Outbox is an in-memory Mailer that keeps the last link sent to each address
// until ttl elapses. Used by tests and local development only.
type Outbox struct {
	mu   sync.RWMutex
	m    map[string]entry
	ttl  time.Duration
	nowF func() time.Time
	// Err, when set, is returned by SendMagicLink to simulate delivery failure.
	Err error
}

type entry struct {
	link      string
	expiresAt time.Time
}

// NewOutbox returns an empty Outbox.
func NewOutbox(ttl time.Duration) *Outbox {
	return &Outbox{m: make(map[string]entry), ttl: ttl, nowF: time.Now}
}

// SendMagicLink stores link for email.
func (o *Outbox) SendMagicLink(_ context.Context, email, link string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.m[email] = entry{link: link, expiresAt: o.nowF().Add(o.ttl)}
	return nil
}

// Last returns the last link sent to email if present and not expired.
func (o *Outbox) Last(email string) (string, bool) {
	o.mu.RLock()
	e, ok := o.m[email]
	o.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(o.nowF()) {
		o.mu.Lock()
		delete(o.m, email)
		o.mu.Unlock()
		return "", false
	}
	return e.link, true
}
