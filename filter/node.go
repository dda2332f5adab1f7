package filter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/pipeline"
)

// FilterNode 组合多个过滤器，任何一个返回 true 的候选都会被移除。
// 过滤器出错时记录日志并保留该候选。
type FilterNode struct {
	Filters []Filter
	Logger  zerolog.Logger
}

func (n *FilterNode) Name() string        { return "filter.node" }
func (n *FilterNode) Kind() pipeline.Kind { return pipeline.KindFilter }

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	candidates []core.Candidate,
) ([]core.Candidate, error) {
	if len(n.Filters) == 0 || len(candidates) == 0 {
		return candidates, nil
	}

	out := make([]core.Candidate, 0, len(candidates))
	removed := make(map[string]int, len(n.Filters))
	for i := range candidates {
		c := &candidates[i]
		drop := false
		for _, f := range n.Filters {
			ok, err := f.ShouldFilter(ctx, rctx, c)
			if err != nil {
				n.Logger.Warn().Err(err).Str("filter", f.Name()).Int64("item_id", c.ItemID).Msg("filter failed, keeping candidate")
				continue
			}
			if ok {
				drop = true
				removed[f.Name()]++
				break
			}
		}
		if !drop {
			out = append(out, *c)
		}
	}

	if len(removed) > 0 {
		ev := n.Logger.Debug().Int("in", len(candidates)).Int("out", len(out))
		for name, cnt := range removed {
			ev = ev.Int(name, cnt)
		}
		ev.Msg("candidates filtered")
	}
	return out, nil
}
