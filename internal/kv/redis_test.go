package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedisClosedStoreReturnsErrClosed(t *testing.T) {
	store := NewRedis(RedisOptions{Addr: "localhost:6379"})
	require.NoError(t, store.Close())

	ctx := context.Background()
	require.ErrorIs(t, store.Ping(ctx), ErrClosed)
	require.ErrorIs(t, store.Set(ctx, "k", "v", 0), ErrClosed)
	require.ErrorIs(t, store.SAdd(ctx, "set", "member"), ErrClosed)

	_, _, err := store.Get(ctx, "k")
	require.ErrorIs(t, err, ErrClosed)
	_, err = store.SMembers(ctx, "set")
	require.ErrorIs(t, err, ErrClosed)
}
