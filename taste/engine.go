package taste

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/recall"
)

// ActivitySource 是用户行为与书评数据的读取端口，由业务方实现。
type ActivitySource interface {
	// GetUserActivity 返回用户的收藏与点赞记录
	GetUserActivity(ctx context.Context, userID int64) (core.UserActivity, error)
	// GetRecentReviews 返回指定用户在 since 之后发表的书评
	GetRecentReviews(ctx context.Context, userIDs []int64, since time.Time) ([]core.ReviewWithKeywords, error)
	// ListActiveUsers 返回需要参与批处理的用户
	ListActiveUsers(ctx context.Context) ([]int64, error)
}

// Engine 组合活动数据源与缓存，对外提供口味相关的读写操作。
type Engine struct {
	source  ActivitySource
	cache   *Cache
	breaker *gobreaker.CircuitBreaker[any]
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

// EngineOption 配置 Engine
type EngineOption func(*Engine)

// WithClock 替换时钟（测试用）。
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithBreaker 使用指定的熔断配置保护活动数据源。
func WithBreaker(s recall.BreakerSettings) EngineOption {
	return func(e *Engine) {
		e.breaker = recall.NewBreaker[any]("taste:activity", s, e.logger)
	}
}

// NewEngine 创建 Engine。
func NewEngine(source ActivitySource, cache *Cache, cfg Config, logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		source: source,
		cache:  cache,
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "taste").Logger(),
		now:    time.Now,
	}
	e.breaker = recall.NewBreaker[any]("taste:activity", recall.DefaultBreakerSettings(), e.logger)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config 返回生效的参数。
func (e *Engine) Config() Config { return e.cfg }

// guarded 经熔断器调用活动数据源，熔断打开时返回 UNAVAILABLE。
func guarded[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	var zero T
	out, err := cb.Execute(func() (any, error) { return fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, core.WrapDomainError(core.ModuleTaste, core.ErrorCodeUnavailable, "activity source circuit open", err)
	}
	if err != nil {
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

// RefreshVector 重新计算并保存用户口味向量。
// 没有行为时返回空向量，并删除之前缓存的向量，使其不再进入相似用户计算。
func (e *Engine) RefreshVector(ctx context.Context, userID int64) (core.UserTasteVector, error) {
	activity, err := guarded(e.breaker, func() (core.UserActivity, error) {
		return e.source.GetUserActivity(ctx, userID)
	})
	if err != nil {
		return core.UserTasteVector{}, fmt.Errorf("user activity %d: %w", userID, err)
	}

	vec := BuildTasteVector(userID, activity, e.now(), e.cfg)
	if vec.IsEmpty() {
		e.logger.Debug().Int64("user_id", userID).Msg("no bookmarks or likes, empty taste vector")
		if err := e.cache.DeleteVector(ctx, userID); err != nil {
			return vec, fmt.Errorf("delete taste vector %d: %w", userID, err)
		}
		return vec, nil
	}
	if err := e.cache.SaveVector(ctx, vec); err != nil {
		return vec, fmt.Errorf("save taste vector %d: %w", userID, err)
	}
	return vec, nil
}

// Vectors 从缓存读取一批用户的口味向量，缺失或读取失败的用户被跳过。
func (e *Engine) Vectors(ctx context.Context, userIDs []int64) []core.UserTasteVector {
	out := make([]core.UserTasteVector, 0, len(userIDs))
	for _, id := range userIDs {
		v, found, err := e.cache.Vector(ctx, id)
		if err != nil {
			e.logger.Warn().Err(err).Int64("user_id", id).Msg("load taste vector failed")
			continue
		}
		if found && !v.IsEmpty() {
			out = append(out, v)
		}
	}
	return out
}

// RefreshSimilarUsers 在 population 中为用户寻找相似用户并整体替换缓存。
// 用户没有口味向量时结果为空，旧的相似用户集合被清除。
func (e *Engine) RefreshSimilarUsers(ctx context.Context, userID int64, population []core.UserTasteVector) ([]core.SimilarUser, error) {
	var target core.UserTasteVector
	for _, v := range population {
		if v.UserID == userID {
			target = v
			break
		}
	}
	similar := FindSimilarUsers(target, population, e.cfg.Threshold, e.cfg.TopN)
	if err := e.cache.SaveSimilarUsers(ctx, userID, similar); err != nil {
		return similar, fmt.Errorf("save similar users %d: %w", userID, err)
	}
	return similar, nil
}

// SimilarUsers 读取缓存中的相似用户，未计算过时返回空列表。
func (e *Engine) SimilarUsers(ctx context.Context, userID int64) ([]core.SimilarUser, error) {
	return e.cache.SimilarUsers(ctx, userID)
}

// RecentReviews 读取指定用户在 since 之后发表的书评。
func (e *Engine) RecentReviews(ctx context.Context, userIDs []int64, since time.Time) ([]core.ReviewWithKeywords, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return guarded(e.breaker, func() ([]core.ReviewWithKeywords, error) {
		return e.source.GetRecentReviews(ctx, userIDs, since)
	})
}

// RecentReviewsBySimilarUsers 读取用户的相似用户在窗口内发表的书评。
func (e *Engine) RecentReviewsBySimilarUsers(ctx context.Context, userID int64, window core.Window) ([]core.ReviewWithKeywords, error) {
	similar, err := e.SimilarUsers(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(similar))
	for i, su := range similar {
		ids[i] = su.UserID
	}
	return e.RecentReviews(ctx, ids, e.now().Add(-window.Duration()))
}

// ActiveUsers 返回参与批处理的用户。
func (e *Engine) ActiveUsers(ctx context.Context) ([]int64, error) {
	return guarded(e.breaker, func() ([]int64, error) {
		return e.source.ListActiveUsers(ctx)
	})
}

// RefreshReviewCircle 重新聚合并保存用户在窗口内的书评圈。
// 没有相似用户时返回空书评圈且不写缓存。
func (e *Engine) RefreshReviewCircle(ctx context.Context, userID int64, window core.Window) (core.ReviewCircle, error) {
	now := e.now()
	circle := core.ReviewCircle{
		UserID:       userID,
		Window:       window,
		Topics:       []core.ReviewCircleTopic{},
		CalculatedAt: now,
	}

	similar, err := e.SimilarUsers(ctx, userID)
	if err != nil {
		return circle, fmt.Errorf("similar users %d: %w", userID, err)
	}
	if len(similar) == 0 {
		return circle, nil
	}
	circle.SimilarUserCount = len(similar)

	ids := make([]int64, len(similar))
	for i, su := range similar {
		ids[i] = su.UserID
	}
	reviews, err := e.RecentReviews(ctx, ids, now.Add(-window.Duration()))
	if err != nil {
		return circle, fmt.Errorf("recent reviews %d: %w", userID, err)
	}

	circle.Topics = AggregateTopics(similar, reviews, window, now, e.cfg)
	if err := e.cache.SaveCircle(ctx, circle); err != nil {
		return circle, fmt.Errorf("save review circle %d/%s: %w", userID, window, err)
	}
	e.logger.Debug().
		Int64("user_id", userID).
		Str("window", string(window)).
		Int("topics", len(circle.Topics)).
		Int("reviews", len(reviews)).
		Msg("review circle aggregated")
	return circle, nil
}

// ReviewCircle 优先读缓存，未命中时现场计算。
func (e *Engine) ReviewCircle(ctx context.Context, userID int64, window core.Window) (core.ReviewCircle, error) {
	cached, found, err := e.cache.Circle(ctx, userID, window)
	if err != nil {
		e.logger.Warn().Err(err).Int64("user_id", userID).Msg("read review circle failed, recomputing")
	}
	if found {
		return cached, nil
	}
	return e.RefreshReviewCircle(ctx, userID, window)
}

var _ recall.CircleReader = (*Engine)(nil)
