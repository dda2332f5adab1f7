package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/bookrank/core"
)

func members(kv ...any) []core.ScoredMember {
	out := make([]core.ScoredMember, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, core.ScoredMember{Member: kv[i].(string), Score: kv[i+1].(float64)})
	}
	return out
}

func TestMemoryStore_ZReplaceCapsToTopItems(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.ZReplace(ctx, "k", members("a", 5.0, "b", 3.0, "c", 1.0), 2, time.Hour))

	got, err := s.ZRevRange(ctx, "k", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, members("a", 5.0, "b", 3.0), got)
}

func TestMemoryStore_ZReplaceDropsPreviousMembers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.ZReplace(ctx, "k", members("a", 1.0, "b", 2.0), 0, 0))
	require.NoError(t, s.ZReplace(ctx, "k", members("c", 3.0), 0, 0))

	got, err := s.ZRevRange(ctx, "k", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, members("c", 3.0), got)

	require.NoError(t, s.ZReplace(ctx, "k", nil, 0, 0))
	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_ZIncrByReappliesCap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.ZReplace(ctx, "k", members("a", 5.0, "b", 3.0), 2, time.Hour))

	score, err := s.ZIncrBy(ctx, "k", "c", 4.0, 2, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 4.0, score)

	got, err := s.ZRevRange(ctx, "k", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, members("a", 5.0, "c", 4.0), got)
}

func TestMemoryStore_ZIncrByIfExistsSkipsExpiredKey(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithClock(func() time.Time { return now }))
	defer s.Close()

	_, ok, err := s.ZIncrByIfExists(ctx, "k", "a", 1.0, 0, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.ZReplace(ctx, "k", members("a", 5.0, "b", 3.0), 2, time.Minute))
	score, ok, err := s.ZIncrByIfExists(ctx, "k", "c", 4.0, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4.0, score)
	got, err := s.ZRevRange(ctx, "k", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, members("a", 5.0, "c", 4.0), got)

	now = now.Add(2 * time.Minute)
	_, ok, err = s.ZIncrByIfExists(ctx, "k", "a", 1.0, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	n, err := s.ZCard(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_TiesOrderedByMemberDescending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.ZReplace(ctx, "k", members("book:1", 1.0, "book:3", 1.0, "book:2", 1.0), 0, 0))

	got, err := s.ZRevRange(ctx, "k", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, members("book:3", 1.0, "book:2", 1.0, "book:1", 1.0), got)

	rank, err := s.ZRevRank(ctx, "k", "book:2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rank)

	_, err = s.ZRevRank(ctx, "k", "book:9")
	assert.True(t, core.IsStoreNotFound(err))
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithClock(func() time.Time { return now }))
	defer s.Close()

	require.NoError(t, s.ZReplace(ctx, "k", members("a", 1.0), 0, time.Minute))
	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	now = now.Add(2 * time.Minute)
	n, err := s.ZCard(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = s.TTL(ctx, "k")
	assert.True(t, core.IsStoreNotFound(err))
}

func TestMemoryStore_HashIncrements(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.HIncrByFloat(ctx, "h", "100", 0.25, time.Minute)
	require.NoError(t, err)
	v, err := s.HIncrByFloat(ctx, "h", "100", 0.25, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	all, err := s.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"100": "0.5"}, all)

	empty, err := s.HGetAll(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStore_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	oldSet := members("a", 3.0, "b", 2.0, "c", 1.0)
	newSet := members("x", 3.0, "y", 2.0, "z", 1.0)
	require.NoError(t, s.ZReplace(ctx, "k", oldSet, 0, 0))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				_ = s.ZReplace(ctx, "k", newSet, 0, 0)
			} else {
				_ = s.ZReplace(ctx, "k", oldSet, 0, 0)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		got, err := s.ZRevRange(ctx, "k", 0, -1)
		require.NoError(t, err)
		if got[0].Member == "a" {
			assert.Equal(t, oldSet, got)
		} else {
			assert.Equal(t, newSet, got)
		}
	}
	wg.Wait()
}
