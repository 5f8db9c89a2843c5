package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blueprint-auth/internal/security"
)

func newVerifier(now time.Time) *Verifier {
	return NewVerifier(security.NewArgon2Digester(), security.NewHasher(4)).
		WithClock(func() time.Time { return now })
}

func TestVerifyMagicLink(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	digest, err := security.NewArgon2Digester().Hash("token-value")
	require.NoError(t, err)
	used := now.Add(-time.Minute)

	tests := []struct {
		name      string
		presented string
		expiresAt time.Time
		usedAt    *time.Time
		want      error
	}{
		{"valid", "token-value", now.Add(time.Minute), nil, nil},
		{"valid at exact expiry", "token-value", now, nil, nil},
		{"expired", "token-value", now.Add(-time.Second), nil, ErrExpired},
		{"used", "token-value", now.Add(time.Minute), &used, ErrAlreadyUsed},
		{"expired wins over used", "token-value", now.Add(-time.Second), &used, ErrExpired},
		{"used wins over mismatch", "other", now.Add(time.Minute), &used, ErrAlreadyUsed},
		{"mismatch", "other", now.Add(time.Minute), nil, ErrMismatch},
		{"empty", "", now.Add(time.Minute), nil, ErrMismatch},
	}
	v := newVerifier(now)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.VerifyMagicLink(tt.presented, digest, tt.expiresAt, tt.usedAt)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerifyMagicLink_CorruptDigest(t *testing.T) {
	now := time.Now()
	err := newVerifier(now).VerifyMagicLink("token", "not-a-digest", now.Add(time.Minute), nil)
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestVerifyPassword(t *testing.T) {
	digest, err := security.NewHasher(4).Hash("Password123")
	require.NoError(t, err)
	v := newVerifier(time.Now())

	assert.NoError(t, v.VerifyPassword("Password123", digest))
	assert.ErrorIs(t, v.VerifyPassword("password123", digest), ErrMismatch)
	assert.ErrorIs(t, v.VerifyPassword("Password123", ""), ErrMismatch)
}
