package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blueprint-auth/internal/config"
	sessionrepo "blueprint-auth/internal/session/repository"
)

func TestOpenStores_Memory(t *testing.T) {
	s, err := OpenStores(context.Background(), &config.Config{SessionStore: config.StoreMemory})
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.Pool)
	assert.Nil(t, s.Policies)
	assert.NotNil(t, s.Users)
	assert.IsType(t, &sessionrepo.MemoryRepository{}, s.Sessions)
	assert.True(t, s.Ready(context.Background()))
}

func TestOpenStores_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := OpenStores(context.Background(), &config.Config{
		SessionStore: config.StoreRedis,
		RedisURL:     "redis://" + mr.Addr(),
	})
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &sessionrepo.RedisRepository{}, s.Sessions)
	assert.True(t, s.Ready(context.Background()))

	mr.Close()
	assert.False(t, s.Ready(context.Background()))
	s.Close()
	s.Close()
}

func TestOpenStores_Errors(t *testing.T) {
	_, err := OpenStores(context.Background(), &config.Config{SessionStore: config.StorePostgres})
	assert.Error(t, err)

	_, err = OpenStores(context.Background(), &config.Config{SessionStore: config.StoreRedis, RedisURL: "://bad"})
	assert.Error(t, err)
}
