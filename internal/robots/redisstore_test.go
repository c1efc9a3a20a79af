package robots

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func TestRedisStoreMiss(t *testing.T) {
	store := newTestRedisStore(t)
	_, ok := store.Get("http:example.com:80")
	assert.False(t, ok)
}

func TestRedisStoreAllowAllRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	key := "http:example.com:80"

	store.Set(key, Policy{AllowAll: true}, time.Hour)

	got, ok := store.Get(key)
	require.True(t, ok)
	assert.True(t, got.AllowAll)
	assert.Nil(t, got.Data)
}

func TestRedisStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client)

	key := "http:example.com:80"
	store.Set(key, Policy{AllowAll: true}, time.Second)

	mr.FastForward(2 * time.Second)

	_, ok := store.Get(key)
	assert.False(t, ok)
}
