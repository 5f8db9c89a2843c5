package domain

import "time"

// Challenge is a one-time magic-link login challenge (stored in magic_links).
// Only the argon2id digest of the token is kept.
type Challenge struct {
	ID        string
	Email     string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
