package repository

import (
	"context"
	"time"

	"blueprint-auth/internal/audit/domain"
)

// Repository defines persistence for audit events.
type Repository interface {
	Create(ctx context.Context, e *domain.Event) error
	// ListBySubject returns the subject's events, newest first.
	ListBySubject(ctx context.Context, subjectID string, limit, offset int32) ([]*domain.Event, error)
	// DeleteOlderThan removes events created before cutoff and returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
