package rank

import (
	"context"
	"sort"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/pipeline"
)

// HybridNode 是排序 Node：写入 FinalScore 并按分数降序排序，同分按 ItemID 升序。
type HybridNode struct {
	Scorer *HybridScorer
}

func (n *HybridNode) Name() string        { return "rank.hybrid" }
func (n *HybridNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *HybridNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	candidates []core.Candidate,
) ([]core.Candidate, error) {
	if n.Scorer == nil || len(candidates) == 0 {
		return candidates, nil
	}

	out := make([]core.Candidate, 0, len(candidates))
	for i := range candidates {
		c := candidates[i]
		if c.ItemID <= 0 {
			continue
		}
		c.FinalScore = n.Scorer.CalculateFinalScore(rctx, &c)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out, nil
}
