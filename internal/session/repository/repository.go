package repository

import (
	"context"
	"time"

	"blueprint-auth/internal/session/domain"
)

// Repository defines persistence for refresh-token sessions. Implementations
// must make RevokeIfActive atomic: of several concurrent callers for the same
// token id, at most one observes true.
type Repository interface {
	// Create inserts a non-revoked session. Returns an autherr.ErrConflict error when the token id exists.
	Create(ctx context.Context, s *domain.Session) error
	// FindByTokenID returns the session, or (nil, nil) when absent.
	FindByTokenID(ctx context.Context, tokenID string) (*domain.Session, error)
	// Revoke sets RevokedAt if it is not already set. Revoking a missing or revoked session is a no-op.
	Revoke(ctx context.Context, tokenID string) error
	// RevokeIfActive revokes the session only if it is neither revoked nor expired at now
	// and reports whether this call performed the revocation.
	RevokeIfActive(ctx context.Context, tokenID string, now time.Time) (bool, error)
	// ListBySubject returns all sessions for subjectID, newest first.
	ListBySubject(ctx context.Context, subjectID string) ([]*domain.Session, error)
	// RevokeAllBySubject revokes every active session of subjectID and returns how many were revoked.
	RevokeAllBySubject(ctx context.Context, subjectID string) (int64, error)
	// DeleteExpired removes sessions that expired or were revoked before cutoff and returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
