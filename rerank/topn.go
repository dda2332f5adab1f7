package rerank

import (
	"context"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/pipeline"
)

// TopNNode 在排序后截取前 N 个候选，控制写入排序缓存的规模。
// N <= 0 时不截断。
type TopNNode struct {
	N int
}

func (n *TopNNode) Name() string        { return "rerank.topn" }
func (n *TopNNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *TopNNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	candidates []core.Candidate,
) ([]core.Candidate, error) {
	if n.N <= 0 || len(candidates) <= n.N {
		return candidates, nil
	}
	return candidates[:n.N], nil
}
