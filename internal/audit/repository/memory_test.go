package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blueprint-auth/internal/audit/domain"
)

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, subject := range []string{"u1", "u1", "u2", "u1"} {
		require.NoError(t, repo.Create(ctx, &domain.Event{
			ID: string(rune('a' + i)), SubjectID: subject, Action: domain.ActionLoginSuccess,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	got, err := repo.ListBySubject(ctx, "u1", 2, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	got, err = repo.ListBySubject(ctx, "u1", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := repo.DeleteOlderThan(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	got, err = repo.ListBySubject(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
