package rank

import (
	"github.com/rushteam/bookrank/core"
)

// 信号名称，同时也是权重配置的 key。
const (
	SignalGraph       = "graph"
	SignalSemantic    = "semantic"
	SignalPopularity  = "popularity"
	SignalFreshness   = "freshness"
	SignalEngagement  = "engagement"
	SignalContent     = "content"
	SignalBookContext = "book_context"
)

// Scorer 是单个相关性维度的打分器。
//
// 实现必须是纯函数且总是有定义：返回值落在 [0,1]，
// 信号不适用于该候选的来源时返回 0。打分只读 rctx 与候选本身，不做 I/O。
type Scorer interface {
	Name() string
	Score(rctx *core.RecommendContext, c *core.Candidate) float64
}

// FamilyScorer 只在候选来源属于 Family 时透传 InitialScore，否则为 0。
// 用于书籍域的 graph / semantic / popularity 信号。
type FamilyScorer struct {
	Signal string
	Family core.SourceFamily
}

func (s FamilyScorer) Name() string { return s.Signal }

func (s FamilyScorer) Score(_ *core.RecommendContext, c *core.Candidate) float64 {
	if c == nil || c.Family != s.Family {
		return 0
	}
	v, ok := c.Score()
	if !ok {
		return 0
	}
	return clamp01(v)
}

// EngagementScorer 把会话实时加权归一化到 [0,1]：boost / Ceiling，封顶 1。
type EngagementScorer struct {
	Ceiling float64 // 默认 0.5
}

func (s EngagementScorer) Name() string { return SignalEngagement }

func (s EngagementScorer) Score(rctx *core.RecommendContext, c *core.Candidate) float64 {
	if c == nil {
		return 0
	}
	boost, ok := rctx.Boost(c.ItemID)
	if !ok || boost <= 0 {
		return 0
	}
	ceiling := s.Ceiling
	if ceiling <= 0 {
		ceiling = 0.5
	}
	return clamp01(boost / ceiling)
}

// BookScorers 返回书籍域的完整信号目录。
func BookScorers(engagementCeiling float64) []Scorer {
	return []Scorer{
		FamilyScorer{Signal: SignalGraph, Family: core.FamilyGraph},
		FamilyScorer{Signal: SignalSemantic, Family: core.FamilySemantic},
		FamilyScorer{Signal: SignalPopularity, Family: core.FamilyPopularity},
		BookFreshnessScorer{},
		EngagementScorer{Ceiling: engagementCeiling},
	}
}

// ReviewScorers 返回书评域的完整信号目录。
func ReviewScorers(engagementCeiling float64) []Scorer {
	return []Scorer{
		ReviewPopularityScorer{},
		ReviewFreshnessScorer{},
		EngagementScorer{Ceiling: engagementCeiling},
		ContentScorer{},
		BookContextScorer{},
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
