package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/policy/domain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

var policyCols = []string{"id", "name", "rules", "enabled", "created_at"}

func TestPostgresRepository_GetByID(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM issuance_policies WHERE id = \$1`).
			WithArgs("p1").
			WillReturnRows(pgxmock.NewRows(policyCols).AddRow("p1", "corp", "package x", true, at))
		p, err := NewPostgresRepository(mock).GetByID(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, &domain.Policy{ID: "p1", Name: "corp", Rules: "package x", Enabled: true, CreatedAt: at}, p)
	})

	t.Run("missing", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM issuance_policies WHERE id = \$1`).
			WithArgs("nope").
			WillReturnError(pgx.ErrNoRows)
		p, err := NewPostgresRepository(mock).GetByID(context.Background(), "nope")
		require.NoError(t, err)
		assert.Nil(t, p)
	})
}

func TestPostgresRepository_ListEnabled(t *testing.T) {
	mock := newMock(t)
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM issuance_policies WHERE enabled ORDER BY created_at`).
		WillReturnRows(pgxmock.NewRows(policyCols).
			AddRow("p1", "a", "package a", true, at).
			AddRow("p2", "b", "package b", true, at.Add(time.Hour)))

	list, err := NewPostgresRepository(mock).ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p2", list[1].ID)
}

func TestPostgresRepository_Create(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	p := &domain.Policy{ID: "p1", Name: "corp", Rules: "package x", Enabled: true, CreatedAt: at}

	t.Run("insert", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO issuance_policies`).
			WithArgs("p1", "corp", "package x", true, at).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		require.NoError(t, NewPostgresRepository(mock).Create(context.Background(), p))
	})

	t.Run("duplicate name", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO issuance_policies`).
			WithArgs("p1", "corp", "package x", true, at).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
		err := NewPostgresRepository(mock).Create(context.Background(), p)
		assert.ErrorIs(t, err, autherr.ErrDuplicateResource)
	})
}

func TestPostgresRepository_Update(t *testing.T) {
	p := &domain.Policy{ID: "p1", Rules: "package y", Enabled: false}

	t.Run("updated", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE issuance_policies SET rules = \$2, enabled = \$3 WHERE id = \$1`).
			WithArgs("p1", "package y", false).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, NewPostgresRepository(mock).Update(context.Background(), p))
	})

	t.Run("missing", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE issuance_policies`).
			WithArgs("p1", "package y", false).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		require.Error(t, NewPostgresRepository(mock).Update(context.Background(), p))
	})
}
