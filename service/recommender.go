// Package service 编排一次推荐请求：读排序缓存，未命中时召回、过滤、补充、打分并回写缓存。
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rushteam/bookrank/cache"
	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/filter"
	"github.com/rushteam/bookrank/pipeline"
	"github.com/rushteam/bookrank/pkg/metrics"
	"github.com/rushteam/bookrank/rank"
	"github.com/rushteam/bookrank/recall"
	"github.com/rushteam/bookrank/rerank"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Request 是一次推荐请求。
type Request struct {
	UserID       *int64
	ContextID    *int64  // 书评域的书籍上下文，为空表示 feed
	Cursor       *string // 上一页最后一项的 ID
	Limit        int     // 默认 20，最大 100
	SessionID    string
	ForceRefresh bool // 跳过缓存直接重算
}

// Response 是一页推荐结果。
type Response struct {
	RequestID string
	core.Page
	FromCache bool
	Fallback  bool
}

// Deps 是 Recommender 的依赖。
type Deps struct {
	// Pipeline 从召回到排序的完整候选链，最后一个 Node 之后候选必须带 FinalScore。
	Pipeline *pipeline.Pipeline
	// Fallback 个性化为空或重算失败时的热门来源。
	// 热门候选跳过 Pipeline 的召回节点，其余节点照常执行。
	Fallback      recall.CandidateSource
	FallbackLimit int // 默认 100
	Scorer        *rank.HybridScorer
	Cache         *cache.RankedCache // 必需
	Sessions      *cache.SessionBoosts
	// Exposure / Sampler 只作用于书评 feed。
	Exposure *filter.ExposedFilter
	Sampler  *rerank.WindowSampler
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Recommender 是按业务域参数化的推荐编排器。
type Recommender struct {
	domain core.Domain
	deps   Deps
	tail   *pipeline.Pipeline
	logger zerolog.Logger
	now    func() time.Time
}

// NewBookRecommender 创建书籍推荐编排器。
func NewBookRecommender(deps Deps) *Recommender {
	return newRecommender(core.DomainBook, deps)
}

// NewReviewRecommender 创建书评推荐编排器。
func NewReviewRecommender(deps Deps) *Recommender {
	return newRecommender(core.DomainReview, deps)
}

func newRecommender(domain core.Domain, deps Deps) *Recommender {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.FallbackLimit <= 0 {
		deps.FallbackLimit = 100
	}
	var tail *pipeline.Pipeline
	if deps.Pipeline != nil {
		tail = deps.Pipeline.Without(pipeline.KindRecall, ".fallback")
	}
	return &Recommender{
		domain: domain,
		deps:   deps,
		tail:   tail,
		logger: deps.Logger.With().Str("component", "recommender").Str("domain", string(domain)).Logger(),
		now:    now,
	}
}

// Domain 返回业务域。
func (r *Recommender) Domain() core.Domain { return r.domain }

func (r *Recommender) newContext(req Request) *core.RecommendContext {
	return &core.RecommendContext{
		RequestID: uuid.NewString(),
		Domain:    r.domain,
		UserID:    req.UserID,
		ContextID: req.ContextID,
		SessionID: req.SessionID,
		Now:       r.now(),
	}
}

func (r *Recommender) key(userID, contextID *int64) string {
	return cache.Key(r.domain, userID, contextID)
}

// isFeed 报告请求是否为书评 feed（无书籍上下文）。
func (r *Recommender) isFeed(req Request) bool {
	return r.domain == core.DomainReview && req.ContextID == nil
}

// Recommend 返回一页推荐结果。
//
//   - 默认先读缓存；命中直接服务
//   - 未命中或强制刷新时重算，结果尽力写回缓存，本次从内存结果服务
//   - 重算为空或失败时回退到热门候选
//   - 书评 feed 额外做曝光过滤与窗口采样
func (r *Recommender) Recommend(ctx context.Context, req Request) (*Response, error) {
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	rctx := r.newContext(req)
	key := r.key(req.UserID, req.ContextID)

	resp := &Response{RequestID: rctx.RequestID}
	if !req.ForceRefresh {
		if page, ok := r.fromCache(ctx, key, req); ok {
			resp.Page = page
			resp.FromCache = true
			r.postProcess(ctx, rctx, req, resp)
			return resp, nil
		}
	}

	ranked, fallback := r.recompute(ctx, rctx)
	resp.Fallback = fallback
	resp.Page = r.deps.Cache.PageOf(ranked, req.Cursor, req.Limit)
	r.postProcess(ctx, rctx, req, resp)
	return resp, nil
}

// fromCache 读取缓存页。读取失败按未命中处理；
// 带游标的空页在 key 仍存在时视为已翻到末尾。
func (r *Recommender) fromCache(ctx context.Context, key string, req Request) (core.Page, bool) {
	page, err := r.deps.Cache.Get(ctx, key, req.Cursor, req.Limit)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("ranked cache read failed, recomputing")
		return core.Page{}, false
	}
	if len(page.Items) > 0 {
		return page, true
	}
	if req.Cursor != nil {
		exists, err := r.deps.Cache.Exists(ctx, key)
		if err == nil && exists {
			return page, true
		}
	}
	return core.Page{}, false
}

// recompute 跑完整候选链并回写缓存，返回按 FinalScore 排好序的候选。
func (r *Recommender) recompute(ctx context.Context, rctx *core.RecommendContext) ([]core.Candidate, bool) {
	start := time.Now()
	defer func() {
		metrics.RecomputeDuration.WithLabelValues(string(r.domain)).Observe(time.Since(start).Seconds())
	}()

	rctx.SessionBoosts = r.loadBoosts(ctx, rctx)

	var ranked []core.Candidate
	reason := ""
	if r.deps.Pipeline != nil {
		out, err := r.deps.Pipeline.Run(ctx, rctx, nil)
		switch {
		case err != nil:
			r.logger.Warn().Err(err).Str("user", rctx.UserKey()).Msg("recompute failed, serving popularity fallback")
			reason = "error"
		case len(out) == 0:
			reason = "empty"
		default:
			ranked = out
		}
	} else {
		reason = "empty"
	}

	if reason != "" {
		metrics.Fallbacks.WithLabelValues(string(r.domain), reason).Inc()
		ranked = r.fallback(ctx, rctx)
	}

	// 重算失败时的回退结果不写缓存
	if reason != "error" && len(ranked) > 0 {
		key := r.key(rctx.UserID, rctx.ContextID)
		if err := r.deps.Cache.SaveCandidates(ctx, key, ranked); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("ranked cache write failed")
		}
	}
	return ranked, reason != ""
}

func (r *Recommender) loadBoosts(ctx context.Context, rctx *core.RecommendContext) map[int64]float64 {
	if r.deps.Sessions == nil || rctx.UserID == nil {
		return nil
	}
	res := core.Try(r.deps.Sessions.Load(ctx, r.domain, *rctx.UserID))
	return res.Degrade(nil, func(err error) {
		r.logger.Warn().Err(err).Int64("user_id", *rctx.UserID).Msg("load session boosts failed")
	})
}

// fallback 取热门候选，经过与个性化结果相同的过滤、补充与排序节点。
// 这些节点出错时不返回未过滤的热门候选。
func (r *Recommender) fallback(ctx context.Context, rctx *core.RecommendContext) []core.Candidate {
	if r.deps.Fallback == nil {
		return nil
	}
	res := core.Try(r.deps.Fallback.GenerateCandidates(ctx, rctx.UserID, rctx.ContextID, r.deps.FallbackLimit))
	cands := res.Degrade(nil, func(err error) {
		r.logger.Warn().Err(err).Str("source", r.deps.Fallback.Name()).Msg("popularity fallback failed")
	})
	if len(cands) == 0 {
		return nil
	}
	for i := range cands {
		cands[i].Family = core.FamilyOf(cands[i].Source)
	}
	if r.tail == nil {
		return r.score(ctx, rctx, cands)
	}

	out, err := r.tail.Run(ctx, rctx, cands)
	if err != nil {
		r.logger.Warn().Err(err).Str("user", rctx.UserKey()).Msg("popularity fallback pipeline failed")
		return nil
	}
	if r.tail.Stage(pipeline.KindRank) == nil {
		out = r.score(ctx, rctx, out)
	}
	return out
}

// score 用打分器排序；没有打分器时以初始分作为最终分。
func (r *Recommender) score(ctx context.Context, rctx *core.RecommendContext, cands []core.Candidate) []core.Candidate {
	if r.deps.Scorer != nil {
		out, _ := (&rank.HybridNode{Scorer: r.deps.Scorer}).Process(ctx, rctx, cands)
		return out
	}
	for i := range cands {
		cands[i].FinalScore, _ = cands[i].Score()
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].FinalScore > cands[j].FinalScore
	})
	return cands
}

// postProcess 对书评 feed 做曝光过滤与窗口采样。
func (r *Recommender) postProcess(ctx context.Context, rctx *core.RecommendContext, req Request, resp *Response) {
	if !r.isFeed(req) || len(resp.Items) == 0 {
		return
	}
	if r.deps.Exposure != nil {
		resp.Items = r.deps.Exposure.Apply(ctx, req.UserID, resp.Items, rctx.Now)
	}
	if r.deps.Sampler != nil {
		resp.Items = r.deps.Sampler.ApplySampling(resp.Items, req.SessionID, rctx.Now)
	}
}

// Refresh 清除缓存并强制重算。
func (r *Recommender) Refresh(ctx context.Context, userID, contextID *int64) error {
	key := r.key(userID, contextID)
	if err := r.deps.Cache.Clear(ctx, key); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("clear ranked cache failed")
	}
	rctx := r.newContext(Request{UserID: userID, ContextID: contextID})
	r.recompute(ctx, rctx)
	return nil
}

// Stats 返回用户缓存 key 的状态。
func (r *Recommender) Stats(ctx context.Context, userID, contextID *int64) (cache.Stats, error) {
	return r.deps.Cache.Stats(ctx, r.key(userID, contextID))
}

// ScoreBreakdown 重跑候选链并返回单个物品的打分明细，仅用于诊断。
// 物品不在候选中时返回 NOT_FOUND。
func (r *Recommender) ScoreBreakdown(ctx context.Context, userID, contextID *int64, itemID int64) (core.ScoreBreakdown, error) {
	if r.deps.Scorer == nil || r.deps.Pipeline == nil {
		return core.ScoreBreakdown{}, core.NewDomainError(core.ModuleService, core.ErrorCodeNotSupported, "score breakdown requires a scorer and pipeline")
	}
	rctx := r.newContext(Request{UserID: userID, ContextID: contextID})
	rctx.SessionBoosts = r.loadBoosts(ctx, rctx)

	cands, err := r.deps.Pipeline.Run(ctx, rctx, nil)
	if err != nil {
		return core.ScoreBreakdown{}, fmt.Errorf("score breakdown: %w", err)
	}
	for i := range cands {
		if cands[i].ItemID == itemID {
			return r.deps.Scorer.ScoreBreakdown(rctx, &cands[i]), nil
		}
	}
	return core.ScoreBreakdown{}, core.NewDomainError(core.ModuleService, core.ErrorCodeNotFound,
		fmt.Sprintf("item %d is not a candidate for user %s", itemID, rctx.UserKey()))
}
