package rank

import (
	"time"

	"github.com/rushteam/bookrank/core"
)

const day = 24 * time.Hour

// ageDays 返回候选相对 rctx.Now 的天数。
// 候选缺少时间或请求未设置 Now 时返回 ok=false，打分不读取系统时钟。
func ageDays(rctx *core.RecommendContext, c *core.Candidate) (float64, bool) {
	if c == nil || c.CreatedAt == nil || rctx == nil || rctx.Now.IsZero() {
		return 0, false
	}
	return float64(rctx.Now.Sub(*c.CreatedAt)) / float64(day), true
}

// BookFreshnessScorer 按出版时间衰减：
//   - 30 天内 1.0
//   - 30 天到 1 年线性降到 0.5
//   - 1 年到 3 年线性降到 0.1，之后保持 0.1
//
// 没有出版时间为中性 0.5，未来时间视为最新。
type BookFreshnessScorer struct{}

func (BookFreshnessScorer) Name() string { return SignalFreshness }

func (BookFreshnessScorer) Score(rctx *core.RecommendContext, c *core.Candidate) float64 {
	d, ok := ageDays(rctx, c)
	if !ok {
		return 0.5
	}
	switch {
	case d <= 30:
		return 1.0
	case d <= 365:
		return 1.0 - (d-30)/335*0.5
	case d <= 1095:
		return max(0.1, 0.5-(d-365)/730*0.4)
	default:
		return 0.1
	}
}

// ReviewFreshnessScorer 按发表时间衰减：
//   - 30 天内从 1.0 线性降到 0.5
//   - 30 到 180 天从 0.5 线性降到 0.2
//   - 下限 0.2
type ReviewFreshnessScorer struct{}

func (ReviewFreshnessScorer) Name() string { return SignalFreshness }

func (ReviewFreshnessScorer) Score(rctx *core.RecommendContext, c *core.Candidate) float64 {
	d, ok := ageDays(rctx, c)
	if !ok {
		return 0.5
	}
	switch {
	case d < 0:
		return 1.0
	case d <= 30:
		return 1.0 - d/30*0.5
	case d <= 180:
		return max(0.2, 0.5-(d-30)/150*0.3)
	default:
		return 0.2
	}
}

// ReviewPopularityScorer 透传来源给出的热度分，缺失为 0.5。
// 书评域所有来源都以热度/相似度作为 InitialScore，因此不按 family 过滤。
type ReviewPopularityScorer struct{}

func (ReviewPopularityScorer) Name() string { return SignalPopularity }

func (ReviewPopularityScorer) Score(_ *core.RecommendContext, c *core.Candidate) float64 {
	if c == nil {
		return 0
	}
	v, ok := c.Score()
	if !ok {
		return 0.5
	}
	return clamp01(v)
}

// sourceQuality 是书评来源的内容质量先验。
var sourceQuality = map[core.SourceTag]float64{
	core.SourceSimilarReview:     0.8,
	core.SourceFollowedUser:      0.9,
	core.SourceBookPopular:       0.7,
	core.SourcePopularity:        0.6,
	core.SourceRecent:            0.55,
	core.SourceGraphSimilarUser:  0.85,
	core.SourceGraphBookAffinity: 0.75,
}

// ContentScorer 按来源给出内容质量分，未知来源 0.5。
type ContentScorer struct{}

func (ContentScorer) Name() string { return SignalContent }

func (ContentScorer) Score(_ *core.RecommendContext, c *core.Candidate) float64 {
	if c == nil {
		return 0
	}
	if q, ok := sourceQuality[c.Source]; ok {
		return q
	}
	return 0.5
}

// BookContextScorer 是书籍上下文硬匹配：候选所属书籍等于请求的书籍为 1，否则为 0。
// 没有上下文（feed）时恒为 0。
type BookContextScorer struct{}

func (BookContextScorer) Name() string { return SignalBookContext }

func (BookContextScorer) Score(rctx *core.RecommendContext, c *core.Candidate) float64 {
	if rctx == nil || rctx.ContextID == nil || c == nil || c.BookID == nil {
		return 0
	}
	if *c.BookID == *rctx.ContextID {
		return 1
	}
	return 0
}
