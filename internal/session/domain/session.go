package domain

import "time"

// Session is the server-side record of one issued refresh token. It is created
// on issuance and only ever mutated to set RevokedAt.
type Session struct {
	TokenID   string
	SubjectID string
	ExpiresAt time.Time
	RevokedAt *time.Time // nil when not revoked
	CreatedAt time.Time
}

// IsRevoked reports whether the session has been revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsExpiredAt reports whether the session's expiry has been reached at now.
func (s *Session) IsExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsActiveAt reports whether the session can still be rotated at now.
func (s *Session) IsActiveAt(now time.Time) bool {
	return !s.IsRevoked() && !s.IsExpiredAt(now)
}
