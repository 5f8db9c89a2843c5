package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/user/domain"
)

func TestMemoryRepository_UniqueEmailAndPhone(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, &domain.User{ID: "u1", Email: "a@b.com", Phone: "+14155552671"}))

	err := repo.Create(ctx, &domain.User{ID: "u2", Email: "A@B.com"})
	assert.ErrorIs(t, err, autherr.ErrDuplicateResource)
	err = repo.Create(ctx, &domain.User{ID: "u3", Email: "c@d.com", Phone: "+14155552671"})
	assert.ErrorIs(t, err, autherr.ErrDuplicateResource)

	got, err := repo.GetByEmail(ctx, "A@b.COM")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)

	got, err = repo.GetByPhone(ctx, "+14155552671")
	require.NoError(t, err)
	require.NotNil(t, got)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, &domain.User{ID: "u1", Email: "a@b.com"}))
	require.NoError(t, repo.Create(ctx, &domain.User{ID: "u2", Email: "c@d.com"}))

	assert.ErrorIs(t, repo.Update(ctx, &domain.User{ID: "u2", Email: "a@b.com"}), autherr.ErrDuplicateResource)
	assert.ErrorIs(t, repo.Update(ctx, &domain.User{ID: "u9", Email: "x@y.com"}), autherr.ErrUserNotFound)
	require.NoError(t, repo.Update(ctx, &domain.User{ID: "u2", Email: "new@d.com", Name: "New"}))

	got, _ := repo.GetByID(ctx, "u2")
	assert.Equal(t, "New", got.Name)
}

func TestMemoryRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, &domain.User{ID: "u1", Email: "a@b.com"}))

	require.NoError(t, repo.Delete(ctx, "u1"))
	require.NoError(t, repo.Delete(ctx, "u1"))
	got, err := repo.GetByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, repo.Create(ctx, &domain.User{ID: "u2", Email: "a@b.com"}))
}
