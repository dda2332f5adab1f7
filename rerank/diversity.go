package rerank

import (
	"context"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/pipeline"
)

// Diversity 限制同一作者的书评数量（保留分数最高的前 MaxPerAuthor 条）。
// 没有作者信息的候选不受限制。
type Diversity struct {
	MaxPerAuthor int // 默认 3
}

func (n *Diversity) Name() string        { return "rerank.diversity" }
func (n *Diversity) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	candidates []core.Candidate,
) ([]core.Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	limit := n.MaxPerAuthor
	if limit <= 0 {
		limit = 3
	}

	seen := make(map[int64]int, 32)
	out := make([]core.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.AuthorID == nil {
			out = append(out, c)
			continue
		}
		if seen[*c.AuthorID] >= limit {
			continue
		}
		seen[*c.AuthorID]++
		out = append(out, c)
	}
	return out, nil
}
