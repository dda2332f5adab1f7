package recall

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/pipeline"
	"github.com/rushteam/bookrank/pkg/metrics"
)

// Aggregator 是一个 Recall Node：并发调用所有候选来源，合并并按物品去重。
//
//   - 每个来源有独立超时；失败或超时只记录日志，贡献空结果，不影响其他来源
//   - 去重保留 InitialScore 最高的候选，同分保留先出现的；“先出现”按 Sources 声明顺序
//   - Strict 打开时（书籍域），分数透传型来源缺失 InitialScore 的候选被丢弃并记为契约违反
type Aggregator struct {
	Domain         core.Domain
	Sources        []CandidateSource
	PerSourceLimit int           // 每个来源的最大候选数
	Timeout        time.Duration // 每个来源的超时时间
	Strict         bool
	Logger         zerolog.Logger
}

func (a *Aggregator) Name() string        { return "recall.aggregate" }
func (a *Aggregator) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，忽略输入，按请求上下文重新召回。
func (a *Aggregator) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []core.Candidate,
) ([]core.Candidate, error) {
	return a.Aggregate(ctx, rctx.UserID, rctx.ContextID), nil
}

// Aggregate 并发召回并去重。所有来源都失败或为空时返回空切片，由调用方决定回退。
func (a *Aggregator) Aggregate(ctx context.Context, userID, contextID *int64) []core.Candidate {
	if len(a.Sources) == 0 {
		return nil
	}

	// 每个来源写自己的槽位，合并时按声明顺序遍历，保证去重结果确定
	lists := make([][]core.Candidate, len(a.Sources))
	var eg errgroup.Group
	for i, src := range a.Sources {
		eg.Go(func() error {
			lists[i] = a.fetch(ctx, src, userID, contextID)
			return nil
		})
	}
	_ = eg.Wait()

	for i, src := range a.Sources {
		lists[i] = a.validate(src.Name(), lists[i], userID)
	}
	return Merge(lists...)
}

func (a *Aggregator) fetch(ctx context.Context, src CandidateSource, userID, contextID *int64) []core.Candidate {
	fetchCtx := ctx
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	start := time.Now()
	res := core.Try(src.GenerateCandidates(fetchCtx, userID, contextID, a.PerSourceLimit))
	metrics.SourceDuration.WithLabelValues(string(a.Domain), src.Name()).Observe(time.Since(start).Seconds())

	out := res.Degrade(nil, func(err error) {
		status := "error"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			status = "timeout"
		case core.IsUnavailable(err):
			status = "open"
		}
		metrics.SourceRequests.WithLabelValues(string(a.Domain), src.Name(), status).Inc()
		event := a.Logger.Warn().Err(err).Str("source", src.Name()).Str("status", status)
		if userID != nil {
			event = event.Int64("user_id", *userID)
		}
		event.Msg("candidate source failed, contributing no candidates")
	})
	if res.OK() {
		metrics.SourceRequests.WithLabelValues(string(a.Domain), src.Name(), "ok").Inc()
	}

	if a.PerSourceLimit > 0 && len(out) > a.PerSourceLimit {
		out = out[:a.PerSourceLimit]
	}
	return out
}

// validate 丢弃违反契约的候选，并预计算 Family。
func (a *Aggregator) validate(source string, cands []core.Candidate, userID *int64) []core.Candidate {
	if len(cands) == 0 {
		return cands
	}
	out := cands[:0:0]
	for _, c := range cands {
		c.Family = core.FamilyOf(c.Source)
		if err := c.Validate(a.Strict); err != nil {
			if core.IsContractViolation(err) {
				metrics.ContractViolations.WithLabelValues(string(a.Domain), source).Inc()
				a.Logger.Error().Err(err).Str("source", source).Int64("item_id", c.ItemID).Msg("candidate contract violation")
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

// Merge 按 ItemID 去重：保留 InitialScore 最高的候选（空分数低于任何分数），同分保留先出现的。
// 输出顺序为每个 ItemID 第一次出现的顺序。
func Merge(lists ...[]core.Candidate) []core.Candidate {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	index := make(map[int64]int, total)
	out := make([]core.Candidate, 0, total)
	for _, l := range lists {
		for _, c := range l {
			pos, seen := index[c.ItemID]
			if !seen {
				index[c.ItemID] = len(out)
				out = append(out, c)
				continue
			}
			if higher(c, out[pos]) {
				out[pos] = c
			}
		}
	}
	return out
}

// higher 报告 a 的 InitialScore 是否严格高于 b。
func higher(a, b core.Candidate) bool {
	as, aok := a.Score()
	bs, bok := b.Score()
	switch {
	case !aok:
		return false
	case !bok:
		return true
	default:
		return as > bs
	}
}
