package rerank

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/bookrank/core"
)

func ranked(n int) []core.RecommendationResult {
	out := make([]core.RecommendationResult, n)
	for i := range out {
		out[i] = core.RecommendationResult{ItemID: int64(i + 1), Score: float64(n - i), Rank: i + 1}
	}
	return out
}

func ids(rs []core.RecommendationResult) []int64 {
	out := make([]int64, len(rs))
	for i, r := range rs {
		out[i] = r.ItemID
	}
	return out
}

func TestWindowSampler_Disabled(t *testing.T) {
	s := NewWindowSampler(SamplingConfig{})
	in := ranked(20)
	assert.Equal(t, in, s.ApplySampling(in, "abc", time.Now()))
}

func TestWindowSampler_SameSessionSameMinute(t *testing.T) {
	s := NewWindowSampler(DefaultSamplingConfig())
	in := ranked(120)
	now := time.Date(2026, 4, 1, 10, 15, 5, 0, time.UTC)

	a := s.ApplySampling(in, "session-1", now)
	b := s.ApplySampling(in, "session-1", now.Add(40*time.Second))
	assert.Equal(t, ids(a), ids(b))

	// 输入不被修改
	assert.Equal(t, ranked(120), in)
}

func TestWindowSampler_TierInvariants(t *testing.T) {
	s := NewWindowSampler(DefaultSamplingConfig())
	in := ranked(120)
	out := s.ApplySampling(in, "session-2", time.Now())
	require.Len(t, out, 120)

	got := ids(out)
	// PARTIAL 固定前 3 名
	assert.Equal(t, []int64{1, 2, 3}, got[:3])

	// 每个窗口内的成员集合不变
	same := func(from, to int) {
		a := append([]int64(nil), got[from:to]...)
		sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
		want := make([]int64, 0, to-from)
		for i := from; i < to; i++ {
			want = append(want, int64(i+1))
		}
		assert.Equal(t, want, a, "range %d-%d", from, to)
	}
	same(3, 10)
	for w := 10; w < 50; w += 8 {
		same(w, w+8)
	}
	same(50, 100)

	// 三层之外保持原顺序
	assert.Equal(t, ids(in[100:]), got[100:])

	for i, r := range out {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestWindowSampler_KeepsPageRankBase(t *testing.T) {
	s := NewWindowSampler(DefaultSamplingConfig())
	in := ranked(30)
	for i := range in {
		in[i].Rank += 20
	}
	out := s.ApplySampling(in, "x", time.Now())
	assert.Equal(t, 21, out[0].Rank)
	assert.Equal(t, 50, out[29].Rank)
}

func TestSeed(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 15, 0, 0, time.UTC)
	assert.Equal(t, Seed("s", now), Seed("s", now.Add(59*time.Second)))
	assert.NotEqual(t, Seed("s", now), Seed("s", now.Add(time.Minute)))
	assert.NotEqual(t, Seed("s", now), Seed("t", now))
}

func TestDiversity_CapsPerAuthor(t *testing.T) {
	mk := func(id, author int64) core.Candidate {
		c := core.NewCandidate(id, core.SourceRecent, nil, "")
		c.AuthorID = core.Int64(author)
		return c
	}
	out, err := (&Diversity{MaxPerAuthor: 1}).Process(context.Background(), nil, []core.Candidate{
		mk(1, 7), mk(2, 7), mk(3, 8), core.NewCandidate(4, core.SourceRecent, nil, ""),
	})
	require.NoError(t, err)
	got := make([]int64, 0, len(out))
	for _, c := range out {
		got = append(got, c.ItemID)
	}
	assert.Equal(t, []int64{1, 3, 4}, got)
}

func TestTopNNode(t *testing.T) {
	in := []core.Candidate{
		core.NewCandidate(1, core.SourceRecent, nil, ""),
		core.NewCandidate(2, core.SourceRecent, nil, ""),
		core.NewCandidate(3, core.SourceRecent, nil, ""),
	}
	out, err := (&TopNNode{N: 2}).Process(context.Background(), nil, in)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = (&TopNNode{}).Process(context.Background(), nil, in)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}
