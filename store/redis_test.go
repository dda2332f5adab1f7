package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实 Redis：REDIS_ADDR=localhost:6379 go test ./store/...
func newTestRedis(t *testing.T) *RedisStore {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis integration test")
	}
	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr, DB: 15})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTempKey_SameHashSlot(t *testing.T) {
	for _, key := range []string{
		"rec:book:user:7",
		"rec:review:user:{7}:feed",
		"taste:vector:42",
	} {
		tmp := tempKey(key)
		assert.Equal(t, hashTag(key), hashTag(tmp), key)
		assert.NotEqual(t, key, tmp)
	}
	assert.Equal(t, "7", hashTag("rec:review:user:{7}:feed"))
	assert.Equal(t, "popular:{}:books", hashTag("popular:{}:books"))
}

func TestRedisStore_ZIncrByIfExists(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()
	key := "bookrank:test:zincr_if_exists"
	t.Cleanup(func() { _ = s.Delete(ctx, key) })
	_ = s.Delete(ctx, key)

	_, ok, err := s.ZIncrByIfExists(ctx, key, "a", 1.5, 0, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.ZReplace(ctx, key, members("a", 5.0, "b", 3.0), 2, time.Minute))
	score, ok, err := s.ZIncrByIfExists(ctx, key, "c", 4.0, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4.0, score)
	got, err := s.ZRevRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, members("a", 5.0, "c", 4.0), got)
}

func TestRedisStore_ZReplaceAndRange(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()
	key := "bookrank:test:zreplace"
	t.Cleanup(func() { _ = s.Delete(ctx, key) })

	require.NoError(t, s.ZReplace(ctx, key, members("a", 5.0, "b", 3.0, "c", 1.0), 2, time.Minute))

	got, err := s.ZRevRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, members("a", 5.0, "b", 3.0), got)

	ttl, err := s.TTL(ctx, key)
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	score, err := s.ZIncrBy(ctx, key, "c", 4.0, 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 4.0, score)

	got, err = s.ZRevRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, members("a", 5.0, "c", 4.0), got)
}

func TestRedisStore_MissingKeys(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "bookrank:test:missing")
	assert.Error(t, err)

	_, err = s.ZRevRank(ctx, "bookrank:test:missing", "x")
	assert.Error(t, err)

	all, err := s.HGetAll(ctx, "bookrank:test:missing")
	require.NoError(t, err)
	assert.Empty(t, all)
}
