package pipeline

import (
	"context"
	"fmt"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/pkg/metrics"
)

// Pipeline 把一次重算拆成可组合的 Node 链：召回 → 过滤 → 补充 → 排序。
// 第一个 Node 收到的候选为空，由召回节点生成。
type Pipeline struct {
	Name  string
	Nodes []Node
}

// Run 依次执行各 Node。任一 Node 出错或 ctx 取消时中止，错误带上 Node 名称。
func (p *Pipeline) Run(ctx context.Context, rctx *core.RecommendContext, candidates []core.Candidate) ([]core.Candidate, error) {
	name := p.Name
	if name == "" && rctx != nil {
		name = string(rctx.Domain)
	}
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name(), err)
		}
		next, err := node.Process(ctx, rctx, candidates)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name(), err)
		}
		metrics.StageCandidates.WithLabelValues(name, node.Name()).Observe(float64(len(next)))
		candidates = next
	}
	return candidates, nil
}

// Stage 返回第一个指定类型的 Node，没有返回 nil。
func (p *Pipeline) Stage(kind Kind) Node {
	for _, node := range p.Nodes {
		if node.Kind() == kind {
			return node
		}
	}
	return nil
}

// Without 返回去掉指定类型 Node 的新候选链，名称加后缀 suffix。原链不变。
func (p *Pipeline) Without(kind Kind, suffix string) *Pipeline {
	out := &Pipeline{Name: p.Name + suffix, Nodes: make([]Node, 0, len(p.Nodes))}
	for _, node := range p.Nodes {
		if node.Kind() != kind {
			out.Nodes = append(out.Nodes, node)
		}
	}
	return out
}

// Describe 返回 "name: a → b → c"，用于启动日志。
func (p *Pipeline) Describe() string {
	out := p.Name + ":"
	for i, node := range p.Nodes {
		if i > 0 {
			out += " →"
		}
		out += " " + node.Name()
	}
	return out
}
