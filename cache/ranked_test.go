package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/store"
)

func newCache(t *testing.T, maxItems int) *RankedCache {
	t.Helper()
	kv := store.NewMemoryStore()
	t.Cleanup(func() { _ = kv.Close() })
	return NewRankedCache(kv, core.DomainBook, maxItems, time.Hour)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "rec:book:user:7", BookKey(core.Int64(7)))
	assert.Equal(t, "rec:book:user:anon", BookKey(nil))
	assert.Equal(t, "rec:review:user:7:book:42", ReviewKey(core.Int64(7), core.Int64(42)))
	assert.Equal(t, "rec:review:user:anon:feed", ReviewKey(nil, nil))
	assert.Equal(t, "rec:review:user:7:feed", Key(core.DomainReview, core.Int64(7), nil))
	assert.Equal(t, "review:9", Member(core.DomainReview, 9))
	assert.Equal(t, "session:user:7:books", SessionKey(core.DomainBook, 7))

	id, ok := ParseMember("book:123")
	assert.True(t, ok)
	assert.Equal(t, int64(123), id)
	_, ok = ParseMember("book:x")
	assert.False(t, ok)
}

func TestRankedCache_SaveCapsToTopScores(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, 2)

	require.NoError(t, c.Save(ctx, "k", map[string]float64{"book:1": 5, "book:2": 3, "book:3": 1}))

	page, err := c.Get(ctx, "k", nil, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(1), page.Items[0].ItemID)
	assert.Equal(t, 5.0, page.Items[0].Score)
	assert.Equal(t, int64(2), page.Items[1].ItemID)
	assert.Nil(t, page.NextCursor)
}

func TestRankedCache_IncrementReappliesCap(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, 2)
	require.NoError(t, c.Save(ctx, "k", map[string]float64{"book:1": 5, "book:2": 3}))

	score, err := c.IncrementScore(ctx, "k", "book:3", 4)
	require.NoError(t, err)
	assert.Equal(t, 4.0, score)

	st, err := c.Stats(ctx, "k")
	require.NoError(t, err)
	assert.True(t, st.Exists)
	assert.Equal(t, int64(2), st.CachedItems)
	assert.Greater(t, st.TTL, time.Duration(0))

	_, ok, err := c.Score(ctx, "k", 2)
	require.NoError(t, err)
	assert.False(t, ok)
	s, ok, err := c.Score(ctx, "k", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4.0, s)
}

func TestRankedCache_PaginationContinuity(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, 100)

	scores := make(map[string]float64)
	for i := 1; i <= 23; i++ {
		// 制造同分
		scores[Member(core.DomainBook, int64(i))] = float64(i % 7)
	}
	require.NoError(t, c.Save(ctx, "k", scores))

	all, err := c.Get(ctx, "k", nil, 0)
	require.NoError(t, err)
	require.Len(t, all.Items, 23)

	var (
		paged  []core.RecommendationResult
		cursor *string
	)
	for {
		page, err := c.Get(ctx, "k", cursor, 5)
		require.NoError(t, err)
		paged = append(paged, page.Items...)
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, all.Items, paged)
	for i, it := range paged {
		assert.Equal(t, i+1, it.Rank)
	}
}

func TestRankedCache_MissingCursorStartsFromTop(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, 100)
	require.NoError(t, c.Save(ctx, "k", map[string]float64{"book:1": 3, "book:2": 2, "book:3": 1}))

	gone := "999"
	page, err := c.Get(ctx, "k", &gone, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(1), page.Items[0].ItemID)
	assert.Equal(t, 1, page.Items[0].Rank)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "2", *page.NextCursor)

	page, err = c.Get(ctx, "k", page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 3, page.Items[0].Rank)
	assert.Nil(t, page.NextCursor)
}

func TestRankedCache_ClearAndMissingKey(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, 10)
	require.NoError(t, c.Save(ctx, "k", map[string]float64{"book:1": 1}))
	require.NoError(t, c.Clear(ctx, "k"))

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	page, err := c.Get(ctx, "k", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	st, err := c.Stats(ctx, "k")
	require.NoError(t, err)
	assert.False(t, st.Exists)
}

func TestExposureTracker(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	tr := &ExposureTracker{Store: kv, MaxItems: 3}

	now := time.Now()
	require.NoError(t, tr.Record(ctx, 1, []int64{10, 11}, now.Add(-time.Minute)))
	require.NoError(t, tr.Record(ctx, 1, []int64{12, 13}, now))

	seen, err := tr.Exposed(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, seen, 3)
	assert.Contains(t, seen, int64(12))
	assert.Contains(t, seen, int64(13))
}

func TestSessionBoosts(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	s := &SessionBoosts{Store: kv}

	_, err := s.Boost(ctx, core.DomainBook, 1, 42, 0.3)
	require.NoError(t, err)
	v, err := s.Boost(ctx, core.DomainBook, 1, 42, 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, v, 1e-12)

	got, err := s.Load(ctx, core.DomainBook, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, got[42], 1e-12)

	empty, err := s.Load(ctx, core.DomainReview, 1)
	require.NoError(t, err)
	assert.Empty(t, empty)

	ttl, err := kv.TTL(ctx, SessionKey(core.DomainBook, 1))
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 30*time.Minute)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRankedCache_PageOfMatchesCacheOrder(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, 4)

	cands := make([]core.Candidate, 0, 5)
	for id, s := range map[int64]float64{1: 0.9, 2: 0.5, 9: 0.5, 10: 0.5, 3: 0.1} {
		cand := core.NewCandidate(id, core.SourceGraphGenre, core.Float(s), "")
		cand.FinalScore = s
		cands = append(cands, cand)
	}
	require.NoError(t, c.SaveCandidates(ctx, "k", cands))

	var fromMemory, fromCache []int64
	var memCursor, cacheCursor *string
	for i := 0; i < 4; i++ {
		mp := c.PageOf(cands, memCursor, 2)
		cp, err := c.Get(ctx, "k", cacheCursor, 2)
		require.NoError(t, err)
		for j := range mp.Items {
			fromMemory = append(fromMemory, mp.Items[j].ItemID)
			assert.Equal(t, cp.Items[j].Rank, mp.Items[j].Rank)
		}
		for _, it := range cp.Items {
			fromCache = append(fromCache, it.ItemID)
		}
		memCursor, cacheCursor = mp.NextCursor, cp.NextCursor
		if memCursor == nil {
			assert.Nil(t, cacheCursor)
			break
		}
	}
	// 同分按成员名降序："book:9" > "book:2" > "book:10"，并截断到 4 个
	assert.Equal(t, []int64{1, 9, 2, 10}, fromMemory)
	assert.Equal(t, fromMemory, fromCache)
}

func TestRankedCache_IncrementIfExists(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, 10)

	_, ok, err := c.IncrementIfExists(ctx, "k", "book:1", 2)
	require.NoError(t, err)
	assert.False(t, ok)
	st, err := c.Stats(ctx, "k")
	require.NoError(t, err)
	assert.False(t, st.Exists)

	require.NoError(t, c.Save(ctx, "k", map[string]float64{"book:1": 1}))
	score, ok, err := c.IncrementIfExists(ctx, "k", "book:1", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3.0, score)
}
