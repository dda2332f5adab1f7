package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/bookrank/cache"
	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/store"
)

func TestEventWeights_Delta(t *testing.T) {
	w := DefaultEventWeights()
	tests := []struct {
		name string
		ev   Event
		want float64
		ok   bool
	}{
		{"click", Event{Type: EventClick}, 0.3, true},
		{"bookmark", Event{Type: EventBookmark}, 1.0, true},
		{"dwell 1s", Event{Type: EventDwell, Metadata: map[string]any{"dwellMs": 1000}}, 1.0, true},
		{"dwell capped", Event{Type: EventDwell, Metadata: map[string]any{"dwellMs": 60000}}, 1.5, true},
		{"dwell missing", Event{Type: EventDwell}, 0, true},
		{"scroll half", Event{Type: EventScroll, Metadata: map[string]any{"scrollDepthPct": 50.0}}, 0.25, true},
		{"scroll capped", Event{Type: EventScroll, Metadata: map[string]any{"scrollDepthPct": 300}}, 0.5, true},
		{"negative dwell", Event{Type: EventDwell, Metadata: map[string]any{"dwellMs": -10}}, 0, true},
		{"unknown", Event{Type: "SHARE"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := w.Delta(tt.ev)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func newTracker(t *testing.T) (*Tracker, *cache.RankedCache, *cache.SessionBoosts) {
	t.Helper()
	kv := store.NewMemoryStore()
	t.Cleanup(func() { _ = kv.Close() })
	books := cache.NewRankedCache(kv, core.DomainBook, 500, time.Hour)
	sessions := &cache.SessionBoosts{Store: kv}
	return NewTracker(books, sessions, DefaultEventWeights(), zerolog.Nop()), books, sessions
}

func TestTracker_IgnoresAnonymousAndUnknown(t *testing.T) {
	tr, _, _ := newTracker(t)
	ctx := context.Background()

	assert.False(t, tr.Track(ctx, Event{Type: EventClick, ContentType: ContentBook, ContentID: 1}))
	assert.False(t, tr.Track(ctx, Event{UserID: core.Int64(7), Type: "SHARE", ContentType: ContentBook, ContentID: 1}))
	assert.False(t, tr.Track(ctx, Event{UserID: core.Int64(7), Type: EventDwell, ContentType: ContentBook, ContentID: 1}))
	assert.False(t, tr.Track(ctx, Event{UserID: core.Int64(7), Type: EventClick, ContentType: ContentBook}))
}

func TestTracker_IncrementsOnlyExistingRanking(t *testing.T) {
	tr, books, sessions := newTracker(t)
	ctx := context.Background()
	uid := core.Int64(7)
	key := cache.BookKey(uid)

	require.True(t, tr.Track(ctx, Event{UserID: uid, Type: EventClick, ContentType: ContentBook, ContentID: 3}))
	exists, err := books.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	boosts, err := sessions.Load(ctx, core.DomainBook, 7)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, boosts[3], 1e-12)

	require.NoError(t, books.Save(ctx, key, map[string]float64{"book:3": 1.0, "book:4": 1.1}))
	require.True(t, tr.Track(ctx, Event{UserID: uid, Type: EventBookmark, ContentType: ContentBook, ContentID: 3}))

	score, found, err := books.Score(ctx, key, 3)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 2.0, score, 1e-12)

	page, err := books.Get(ctx, key, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Items[0].ItemID)
}

func TestTracker_ReviewEventBoostsBothDomains(t *testing.T) {
	tr, _, sessions := newTracker(t)
	ctx := context.Background()

	require.True(t, tr.Track(ctx, Event{
		UserID:      core.Int64(7),
		Type:        EventLike,
		ContentType: ContentReview,
		ContentID:   55,
		BookID:      core.Int64(3),
	}))

	reviews, err := sessions.Load(ctx, core.DomainReview, 7)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, reviews[55], 1e-12)

	books, err := sessions.Load(ctx, core.DomainBook, 7)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, books[3], 1e-12)
	assert.NotContains(t, books, int64(55))
}
