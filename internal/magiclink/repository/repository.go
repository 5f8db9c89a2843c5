package repository

import (
	"context"
	"time"

	"blueprint-auth/internal/magiclink/domain"
)

// Repository defines persistence for magic-link challenges.
type Repository interface {
	Create(ctx context.Context, c *domain.Challenge) error
	// LatestUnused returns the newest challenge for email with no UsedAt, or (nil, nil).
	LatestUnused(ctx context.Context, email string) (*domain.Challenge, error)
	// MarkUsed sets UsedAt only if it is still unset and reports whether this call did so.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
	// DeleteExpired removes challenges that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// DefaultChallengeTTL is the default magic-link expiry.
const DefaultChallengeTTL = 15 * time.Minute
