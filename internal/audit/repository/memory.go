package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"blueprint-auth/internal/audit/domain"
)

// MemoryRepository keeps events in process. Used by tests and local development.
type MemoryRepository struct {
	mu     sync.RWMutex
	events []*domain.Event
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(_ context.Context, e *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.events = append(r.events, &cp)
	return nil
}

func (r *MemoryRepository) ListBySubject(_ context.Context, subjectID string, limit, offset int32) ([]*domain.Event, error) {
	r.mu.RLock()
	var out []*domain.Event
	for _, e := range r.events {
		if e.SubjectID == subjectID {
			cp := *e
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var n int64
	for _, e := range r.events {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return n, nil
}
