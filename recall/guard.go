package recall

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/rushteam/bookrank/core"
)

// BreakerSettings 熔断配置
type BreakerSettings struct {
	MaxRequests         uint32        `koanf:"max_requests"`         // 半开状态允许的探测请求数
	Interval            time.Duration `koanf:"interval"`             // 闭合状态下计数清零周期
	Timeout             time.Duration `koanf:"timeout"`              // 打开状态持续时间
	ConsecutiveFailures uint32        `koanf:"consecutive_failures"` // 连续失败多少次后打开
}

// DefaultBreakerSettings 返回默认熔断配置。
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// NewBreaker 按配置创建熔断器，状态变化写日志。
func NewBreaker[T any](name string, s BreakerSettings, logger zerolog.Logger) *gobreaker.CircuitBreaker[T] {
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

// Guarded 是带熔断的候选来源：熔断打开时直接返回 UNAVAILABLE，不再访问下游。
type Guarded struct {
	source  CandidateSource
	breaker *gobreaker.CircuitBreaker[[]core.Candidate]
}

// Guard 用熔断器包装候选来源。
func Guard(src CandidateSource, s BreakerSettings, logger zerolog.Logger) *Guarded {
	return &Guarded{
		source:  src,
		breaker: NewBreaker[[]core.Candidate]("source:"+src.Name(), s, logger),
	}
}

func (g *Guarded) Name() string { return g.source.Name() }

func (g *Guarded) GenerateCandidates(ctx context.Context, userID, contextID *int64, limit int) ([]core.Candidate, error) {
	out, err := g.breaker.Execute(func() ([]core.Candidate, error) {
		return g.source.GenerateCandidates(ctx, userID, contextID, limit)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, core.WrapDomainError(core.ModuleRecall, core.ErrorCodeUnavailable, "source "+g.source.Name()+" circuit open", err)
	}
	return out, err
}

// State 返回当前熔断状态。
func (g *Guarded) State() gobreaker.State { return g.breaker.State() }
