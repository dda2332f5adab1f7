package rank

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrank/core"
)

// Weighted 是带权重的打分器。
type Weighted struct {
	Scorer Scorer
	Weight float64
}

// HybridScorer 计算 finalScore = Σ weight_i × signal_i。
//
// 打分器列表在启动时按信号目录顺序固定下来，求和顺序不变，
// 同样的 (配置, 上下文, 候选) 总是得到同样的分数。
// 权重不要求和为 1。
type HybridScorer struct {
	scorers []Weighted
}

// NewHybridScorer 从信号目录与权重配置组装打分器。
//   - 权重缺失或为 0 的信号不参与计算
//   - 权重为负或引用了目录中没有的信号返回错误
//   - 权重和不为 1 只打 Warn 日志
func NewHybridScorer(catalog []Scorer, weights map[string]float64, logger zerolog.Logger) (*HybridScorer, error) {
	known := make(map[string]struct{}, len(catalog))
	for _, s := range catalog {
		known[s.Name()] = struct{}{}
	}
	for name, w := range weights {
		if _, ok := known[name]; !ok {
			return nil, core.NewDomainError(core.ModuleRank, core.ErrorCodeInvalidInput, fmt.Sprintf("unknown signal %q in weights", name))
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, core.NewDomainError(core.ModuleRank, core.ErrorCodeInvalidInput, fmt.Sprintf("invalid weight %v for signal %q", w, name))
		}
	}

	h := &HybridScorer{}
	var sum float64
	for _, s := range catalog {
		w := weights[s.Name()]
		if w == 0 {
			continue
		}
		h.scorers = append(h.scorers, Weighted{Scorer: s, Weight: w})
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		logger.Warn().Float64("weight_sum", sum).Msg("signal weights do not sum to 1, scores are not normalized")
	}
	return h, nil
}

// Weights 返回生效的权重。
func (h *HybridScorer) Weights() map[string]float64 {
	out := make(map[string]float64, len(h.scorers))
	for _, ws := range h.scorers {
		out[ws.Scorer.Name()] = ws.Weight
	}
	return out
}

// CalculateFinalScore 计算单个候选的最终分数。
func (h *HybridScorer) CalculateFinalScore(rctx *core.RecommendContext, c *core.Candidate) float64 {
	var total float64
	for _, ws := range h.scorers {
		total += ws.Weight * ws.Scorer.Score(rctx, c)
	}
	return total
}

// BatchCalculate 对候选列表打分，返回 itemID -> finalScore。ItemID <= 0 的候选被跳过。
func (h *HybridScorer) BatchCalculate(rctx *core.RecommendContext, candidates []core.Candidate) map[int64]float64 {
	out := make(map[int64]float64, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if c.ItemID <= 0 {
			continue
		}
		out[c.ItemID] = h.CalculateFinalScore(rctx, c)
	}
	return out
}

// ScoreBreakdown 返回每个信号的分值，用于诊断，不要放在热路径上。
func (h *HybridScorer) ScoreBreakdown(rctx *core.RecommendContext, c *core.Candidate) core.ScoreBreakdown {
	signals := make(map[string]float64, len(h.scorers))
	var total float64
	for _, ws := range h.scorers {
		v := ws.Scorer.Score(rctx, c)
		signals[ws.Scorer.Name()] = v
		total += ws.Weight * v
	}
	return core.ScoreBreakdown{
		ItemID:     c.ItemID,
		Signals:    signals,
		Weights:    h.Weights(),
		FinalScore: total,
		Source:     c.Source,
		Reason:     c.Reason,
	}
}

// DefaultBookWeights 书籍域默认权重。
func DefaultBookWeights() map[string]float64 {
	return map[string]float64{
		SignalGraph:      0.4,
		SignalSemantic:   0.3,
		SignalEngagement: 0.15,
		SignalPopularity: 0.1,
		SignalFreshness:  0.05,
	}
}

// DefaultReviewWeights 书评域默认权重。
func DefaultReviewWeights() map[string]float64 {
	return map[string]float64{
		SignalPopularity:  0.35,
		SignalFreshness:   0.15,
		SignalEngagement:  0.2,
		SignalContent:     0.2,
		SignalBookContext: 0.1,
	}
}
