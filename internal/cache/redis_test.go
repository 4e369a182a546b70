package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k1", []byte(`{"a":1}`), time.Minute))
	v, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(v))
	assert.True(t, mr.Exists(keyPrefix+"k1"))

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_ConnectionErrors(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "http://localhost:6379")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	c, err := NewRedisCache(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))

	mr.Close()
	_, _, err = c.Get(context.Background(), "k")
	assert.Error(t, err)
	_ = c.Close()
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(map[string]any{"x": 1, "y": []string{"a"}})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]any{"y": []string{"a"}, "x": 1})
	require.NoError(t, err)
	c, err := Fingerprint(map[string]any{"x": 2, "y": []string{"a"}})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
