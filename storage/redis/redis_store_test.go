package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartflow/storage"
)

func newTestStore(t *testing.T, opts ...Option) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, opts...), mr
}

func TestRedisStore_ReadMissing(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Read(context.Background(), "cart")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRedisStore_WriteAndRead(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"items":[{"product_id":"sku_a","qty":1}]}`)
	require.NoError(t, s.Write(ctx, "cart:u1", payload))

	got, err := s.Read(ctx, "cart:u1")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	s, mr := newTestStore(t, WithPrefix("shop:cart:"))
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "u1", []byte("x")))
	assert.True(t, mr.Exists("shop:cart:u1"))
}

func TestRedisStore_TTLApplied(t *testing.T) {
	s, mr := newTestStore(t, WithTTL(time.Hour))
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "u1", []byte("x")))
	ttl := mr.TTL("cartflow:cart:u1")
	assert.Equal(t, time.Hour, ttl)

	// Past the TTL the value is gone.
	mr.FastForward(2 * time.Hour)
	_, err := s.Read(ctx, "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRedisStore_Delete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "u1", []byte("x")))
	require.NoError(t, s.Delete(ctx, "u1"))

	_, err := s.Read(ctx, "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
