package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/pkg/metrics"
)

// TasteEngine 是批处理依赖的口味计算能力，由 *taste.Engine 实现。
type TasteEngine interface {
	ActiveUsers(ctx context.Context) ([]int64, error)
	RefreshVector(ctx context.Context, userID int64) (core.UserTasteVector, error)
	Vectors(ctx context.Context, userIDs []int64) []core.UserTasteVector
	RefreshSimilarUsers(ctx context.Context, userID int64, population []core.UserTasteVector) ([]core.SimilarUser, error)
	SimilarUsers(ctx context.Context, userID int64) ([]core.SimilarUser, error)
	RefreshReviewCircle(ctx context.Context, userID int64, window core.Window) (core.ReviewCircle, error)
}

// BatchConfig 单个批处理服务的调度与并发参数。
type BatchConfig struct {
	Interval     time.Duration
	RunOnStartup bool
	Parallelism  int     // 默认 8
	RateLimit    float64 // 每秒处理的用户数，0 不限速
	Burst        int
}

// Report 是一轮批处理的按用户统计。
type Report struct {
	Success int64
	Failure int64
	Skipped int64
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeSkipped
)

var outcomeLabels = [...]string{"success", "failure", "skipped"}

// runner 按配置的并发度和速率对一批用户执行 fn。单个用户失败只计数。
type runner struct {
	job     string
	cfg     BatchConfig
	limiter *rate.Limiter
}

func newRunner(job string, cfg BatchConfig) *runner {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &runner{job: job, cfg: cfg, limiter: rate.NewLimiter(limit, burst)}
}

func (r *runner) forEach(ctx context.Context, users []int64, fn func(ctx context.Context, userID int64) outcome) (Report, error) {
	var counts [3]atomic.Int64
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Parallelism)
	for _, uid := range users {
		if err := r.limiter.Wait(gctx); err != nil {
			break
		}
		eg.Go(func() error {
			o := fn(gctx, uid)
			counts[o].Add(1)
			metrics.BatchUsers.WithLabelValues(r.job, outcomeLabels[o]).Inc()
			return nil
		})
	}
	_ = eg.Wait()
	rep := Report{Success: counts[outcomeSuccess].Load(), Failure: counts[outcomeFailure].Load(), Skipped: counts[outcomeSkipped].Load()}
	return rep, ctx.Err()
}

// tick 按 Interval 周期执行 pass，直到 ctx 取消。
func tick(ctx context.Context, cfg BatchConfig, logger zerolog.Logger, pass func(context.Context) (Report, error)) error {
	run := func() {
		if _, err := pass(ctx); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("batch pass failed")
		}
	}
	if cfg.RunOnStartup {
		run()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("batch service shutting down")
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}

// TasteProfileService 每日重建全部活跃用户的口味向量，再为每个用户计算相似用户。
//
//   - 向量阶段并发且限速；失败或无行为的用户不影响其他用户
//   - 相似用户阶段以本轮所有非空向量为候选总体，结果整体替换
type TasteProfileService struct {
	engine TasteEngine
	cfg    BatchConfig
	runner *runner
	logger zerolog.Logger
}

// NewTasteProfileService 创建口味画像批处理服务。Interval 默认 24 小时。
func NewTasteProfileService(engine TasteEngine, cfg BatchConfig, logger zerolog.Logger) *TasteProfileService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &TasteProfileService{
		engine: engine,
		cfg:    cfg,
		runner: newRunner("taste_profile", cfg),
		logger: logger.With().Str("service", "taste_profile").Logger(),
	}
}

func (s *TasteProfileService) String() string { return "taste-profile-service" }

// Serve 实现 suture.Service。
func (s *TasteProfileService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("taste profile service starting")
	return tick(ctx, s.cfg, s.logger, s.RunOnce)
}

// RunOnce 执行一轮完整的口味画像计算，返回相似用户阶段的统计。
func (s *TasteProfileService) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() {
		metrics.BatchDuration.WithLabelValues("taste_profile").Observe(time.Since(start).Seconds())
	}()

	users, err := s.engine.ActiveUsers(ctx)
	if err != nil {
		return Report{}, err
	}

	vectors, err := s.runner.forEach(ctx, users, func(ctx context.Context, uid int64) outcome {
		v, err := s.engine.RefreshVector(ctx, uid)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Int64("user_id", uid).Msg("build taste vector failed")
			return outcomeFailure
		case v.IsEmpty():
			return outcomeSkipped
		default:
			return outcomeSuccess
		}
	})
	if err != nil {
		return vectors, err
	}

	population := s.engine.Vectors(ctx, users)
	similar, err := s.runner.forEach(ctx, users, func(ctx context.Context, uid int64) outcome {
		if _, err := s.engine.RefreshSimilarUsers(ctx, uid, population); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", uid).Msg("compute similar users failed")
			return outcomeFailure
		}
		return outcomeSuccess
	})

	s.logger.Info().
		Int("users", len(users)).
		Int("population", len(population)).
		Int64("vector_failures", vectors.Failure).
		Int64("vector_skipped", vectors.Skipped).
		Int64("similar_failures", similar.Failure).
		Dur("duration", time.Since(start)).
		Msg("taste profile pass complete")
	return similar, err
}

// ReviewCircleService 每小时为有相似用户的活跃用户预计算各窗口的书评圈话题。
type ReviewCircleService struct {
	engine  TasteEngine
	windows []core.Window
	cfg     BatchConfig
	runner  *runner
	logger  zerolog.Logger
}

// NewReviewCircleService 创建书评圈批处理服务。Interval 默认 1 小时，windows 默认 24h 与 7d。
func NewReviewCircleService(engine TasteEngine, windows []core.Window, cfg BatchConfig, logger zerolog.Logger) *ReviewCircleService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if len(windows) == 0 {
		windows = []core.Window{core.Window24h, core.Window7d}
	}
	return &ReviewCircleService{
		engine:  engine,
		windows: windows,
		cfg:     cfg,
		runner:  newRunner("review_circle", cfg),
		logger:  logger.With().Str("service", "review_circle").Logger(),
	}
}

func (s *ReviewCircleService) String() string { return "review-circle-service" }

// Serve 实现 suture.Service。
func (s *ReviewCircleService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("review circle service starting")
	return tick(ctx, s.cfg, s.logger, s.RunOnce)
}

// RunOnce 执行一轮书评圈计算。没有相似用户的用户计为 skipped。
func (s *ReviewCircleService) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() {
		metrics.BatchDuration.WithLabelValues("review_circle").Observe(time.Since(start).Seconds())
	}()

	users, err := s.engine.ActiveUsers(ctx)
	if err != nil {
		return Report{}, err
	}

	rep, err := s.runner.forEach(ctx, users, func(ctx context.Context, uid int64) outcome {
		similar, err := s.engine.SimilarUsers(ctx, uid)
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", uid).Msg("read similar users failed")
			return outcomeFailure
		}
		if len(similar) == 0 {
			return outcomeSkipped
		}
		for _, w := range s.windows {
			if _, err := s.engine.RefreshReviewCircle(ctx, uid, w); err != nil {
				s.logger.Warn().Err(err).Int64("user_id", uid).Str("window", string(w)).Msg("compute review circle failed")
				return outcomeFailure
			}
		}
		return outcomeSuccess
	})

	s.logger.Info().
		Int("users", len(users)).
		Int64("success", rep.Success).
		Int64("failure", rep.Failure).
		Int64("skipped", rep.Skipped).
		Dur("duration", time.Since(start)).
		Msg("review circle pass complete")
	return rep, err
}
