package security

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// OneTimeTokenBytes is the entropy of magic-link tokens (64 hex chars).
const OneTimeTokenBytes = 32

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewOneTimeToken returns a hex-encoded random token of OneTimeTokenBytes.
func NewOneTimeToken() (string, error) {
	b, err := RandomBytes(OneTimeTokenBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewTokenID returns a fresh refresh-token id. Random v4 UUIDs never repeat in practice;
// the session store still rejects duplicates.
func NewTokenID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
