package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rushteam/bookrank/core"
)

func withAge(now time.Time, days float64) *core.Candidate {
	c := core.NewCandidate(1, core.SourceRecent, nil, "")
	t := now.Add(-time.Duration(days * float64(24*time.Hour)))
	c.CreatedAt = &t
	return &c
}

func TestBookFreshness(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rctx := &core.RecommendContext{Now: now}
	s := BookFreshnessScorer{}

	tests := []struct {
		days float64
		want float64
	}{
		{-5, 1.0},
		{0, 1.0},
		{30, 1.0},
		{365, 0.5},
		{730, 0.3},
		{1095, 0.1},
		{4000, 0.1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, s.Score(rctx, withAge(now, tt.days)), 1e-9, "days=%v", tt.days)
	}

	missing := core.NewCandidate(1, core.SourceGraphGenre, core.Float(1), "")
	assert.Equal(t, 0.5, s.Score(rctx, &missing))

	// 请求未设置 Now 时为中性值
	assert.Equal(t, 0.5, s.Score(&core.RecommendContext{}, withAge(now, 400)))
	assert.Equal(t, 0.5, s.Score(nil, withAge(now, 400)))
}

func TestReviewFreshness(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rctx := &core.RecommendContext{Now: now}
	s := ReviewFreshnessScorer{}

	tests := []struct {
		days float64
		want float64
	}{
		{-1, 1.0},
		{0, 1.0},
		{15, 0.75},
		{30, 0.5},
		{105, 0.35},
		{180, 0.2},
		{365, 0.2},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, s.Score(rctx, withAge(now, tt.days)), 1e-9, "days=%v", tt.days)
	}
}

func TestFamilyScorer_SourceGated(t *testing.T) {
	graph := FamilyScorer{Signal: SignalGraph, Family: core.FamilyGraph}

	semantic := core.NewCandidate(1, core.SourceSemantic, core.Float(0.95), "")
	assert.Equal(t, 0.0, graph.Score(nil, &semantic))

	g := core.NewCandidate(1, core.SourceGraphAuthor, core.Float(0.7), "")
	assert.Equal(t, 0.7, graph.Score(nil, &g))

	over := core.NewCandidate(1, core.SourceGraphAuthor, core.Float(1.7), "")
	assert.Equal(t, 1.0, graph.Score(nil, &over))

	noScore := core.NewCandidate(1, core.SourceGraphAuthor, nil, "")
	assert.Equal(t, 0.0, graph.Score(nil, &noScore))
}

func TestEngagementScorer(t *testing.T) {
	s := EngagementScorer{Ceiling: 0.5}
	c := core.NewCandidate(7, core.SourceGraphGenre, core.Float(0.1), "")

	assert.Equal(t, 0.0, s.Score(&core.RecommendContext{}, &c))
	assert.Equal(t, 0.5, s.Score(&core.RecommendContext{SessionBoosts: map[int64]float64{7: 0.25}}, &c))
	assert.Equal(t, 1.0, s.Score(&core.RecommendContext{SessionBoosts: map[int64]float64{7: 3}}, &c))
}

func TestContentAndContextScorers(t *testing.T) {
	unknown := core.NewCandidate(1, core.SourceTag("SOMETHING_ELSE"), nil, "")
	assert.Equal(t, 0.5, ContentScorer{}.Score(nil, &unknown))

	recent := core.NewCandidate(1, core.SourceRecent, nil, "")
	assert.Equal(t, 0.55, ContentScorer{}.Score(nil, &recent))
	assert.Equal(t, 0.5, ReviewPopularityScorer{}.Score(nil, &recent))

	recent.BookID = core.Int64(3)
	assert.Equal(t, 0.0, BookContextScorer{}.Score(&core.RecommendContext{}, &recent))
	assert.Equal(t, 0.0, BookContextScorer{}.Score(&core.RecommendContext{ContextID: core.Int64(4)}, &recent))
	assert.Equal(t, 1.0, BookContextScorer{}.Score(&core.RecommendContext{ContextID: core.Int64(3)}, &recent))
}
