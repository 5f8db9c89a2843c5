package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/session/domain"
)

// MemoryRepository is an in-process Repository for tests and SESSION_STORE=memory.
// A single mutex serialises every operation, which makes RevokeIfActive atomic.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*domain.Session), now: time.Now}
}

func (r *MemoryRepository) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.TokenID]; ok {
		return autherr.New(autherr.ErrConflict, "subject_id", s.SubjectID)
	}
	cp := *s
	cp.RevokedAt = nil
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = r.now().UTC()
	}
	r.sessions[s.TokenID] = &cp
	return nil
}

func (r *MemoryRepository) FindByTokenID(_ context.Context, tokenID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tokenID]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

func (r *MemoryRepository) Revoke(_ context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[tokenID]; ok && s.RevokedAt == nil {
		now := r.now().UTC()
		s.RevokedAt = &now
	}
	return nil
}

func (r *MemoryRepository) RevokeIfActive(_ context.Context, tokenID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tokenID]
	if !ok || !s.IsActiveAt(now) {
		return false, nil
	}
	at := now.UTC()
	s.RevokedAt = &at
	return true, nil
}

func (r *MemoryRepository) ListBySubject(_ context.Context, subjectID string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.SubjectID == subjectID {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) RevokeAllBySubject(_ context.Context, subjectID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	var n int64
	for _, s := range r.sessions {
		if s.SubjectID == subjectID && s.RevokedAt == nil {
			at := now
			s.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(cutoff) || (s.RevokedAt != nil && s.RevokedAt.Before(cutoff)) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func copySession(s *domain.Session) *domain.Session {
	cp := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}
