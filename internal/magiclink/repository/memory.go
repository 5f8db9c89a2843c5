package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"blueprint-auth/internal/magiclink/domain"
)

// MemoryRepository is an in-process Repository used by tests and local development.
type MemoryRepository struct {
	mu         sync.Mutex
	challenges map[string]*domain.Challenge
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{challenges: make(map[string]*domain.Challenge)}
}

func (r *MemoryRepository) Create(_ context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.challenges[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) LatestUnused(_ context.Context, email string) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.Challenge
	for _, c := range r.challenges {
		if c.UsedAt != nil || !strings.EqualFold(c.Email, email) {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryRepository) MarkUsed(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok || c.UsedAt != nil {
		return false, nil
	}
	t := at.UTC()
	c.UsedAt = &t
	return true, nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.challenges {
		if c.ExpiresAt.Before(cutoff) {
			delete(r.challenges, id)
			n++
		}
	}
	return n, nil
}
