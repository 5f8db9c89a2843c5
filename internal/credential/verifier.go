// Package credential checks presented secrets against stored digests.
package credential

import (
	"errors"
	"time"
)

// Verification failures. The orchestrator collapses these into a single
// caller-facing error so callers cannot tell them apart.
var (
	ErrExpired     = errors.New("credential expired")
	ErrAlreadyUsed = errors.New("credential already used")
	ErrMismatch    = errors.New("credential mismatch")
)

// DigestVerifier checks a secret against a stored digest in constant time.
// A mismatch is (false, nil).
type DigestVerifier interface {
	Verify(digest, secret string) (bool, error)
}

// Verifier validates magic-link tokens and passwords.
type Verifier struct {
	oneTime  DigestVerifier
	password DigestVerifier
	now      func() time.Time
}

// NewVerifier returns a Verifier using oneTime for magic-link digests and
// password for password digests.
func NewVerifier(oneTime, password DigestVerifier) *Verifier {
	return &Verifier{oneTime: oneTime, password: password, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// VerifyMagicLink checks expiry, then single use, then the digest. A digest
// that cannot be parsed counts as a mismatch.
func (v *Verifier) VerifyMagicLink(presented, storedDigest string, expiresAt time.Time, usedAt *time.Time) error {
	if v.now().After(expiresAt) {
		return ErrExpired
	}
	if usedAt != nil {
		return ErrAlreadyUsed
	}
	return v.check(v.oneTime, storedDigest, presented)
}

// VerifyPassword checks a presented password against its stored digest.
func (v *Verifier) VerifyPassword(presented, storedDigest string) error {
	return v.check(v.password, storedDigest, presented)
}

func (v *Verifier) check(d DigestVerifier, digest, secret string) error {
	if secret == "" || digest == "" {
		return ErrMismatch
	}
	ok, err := d.Verify(digest, secret)
	if err != nil || !ok {
		return ErrMismatch
	}
	return nil
}
