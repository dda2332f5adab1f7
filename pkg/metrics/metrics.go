// Package metrics 定义排序核心的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SourceRequests 候选来源调用次数，status: ok / error / timeout / open
	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrank_source_requests_total",
			Help: "Candidate source calls by outcome",
		},
		[]string{"domain", "source", "status"},
	)

	// SourceDuration 候选来源耗时
	SourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookrank_source_duration_seconds",
			Help:    "Candidate source latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"domain", "source"},
	)

	// ContractViolations 缺失必需字段而被丢弃的候选
	ContractViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrank_candidate_contract_violations_total",
			Help: "Candidates dropped because their source broke the candidate contract",
		},
		[]string{"domain", "source"},
	)

	// StageCandidates 每个候选链节点输出的候选数
	StageCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookrank_stage_candidates",
			Help:    "Candidates emitted by each pipeline node",
			Buckets: []float64{0, 10, 50, 100, 200, 500, 1000},
		},
		[]string{"pipeline", "node"},
	)

	// CacheLookups 排序缓存读取，result: hit / miss / error
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrank_cache_lookups_total",
			Help: "Ranked cache lookups by result",
		},
		[]string{"domain", "result"},
	)

	// CacheWriteErrors 排序缓存写失败（尽力而为，不对外报错）
	CacheWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrank_cache_write_errors_total",
			Help: "Ranked cache write failures",
		},
		[]string{"domain", "op"},
	)

	// Fallbacks 回退到热门候选的次数，reason: empty / error
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrank_popularity_fallbacks_total",
			Help: "Requests served from the popularity fallback",
		},
		[]string{"domain", "reason"},
	)

	// RecomputeDuration 全量重算耗时
	RecomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookrank_recompute_duration_seconds",
			Help:    "Full candidate-to-cache recompute latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"domain"},
	)

	// TrackedEvents 实时事件，status: applied / ignored / error
	TrackedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrank_tracked_events_total",
			Help: "Real-time tracking events",
		},
		[]string{"type", "status"},
	)

	// BatchUsers 批处理按用户的结果，status: success / failure / skipped
	BatchUsers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookrank_batch_users_total",
			Help: "Per-user batch pass outcomes",
		},
		[]string{"job", "status"},
	)

	// BatchDuration 批处理耗时
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookrank_batch_duration_seconds",
			Help:    "Batch pass duration",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"job"},
	)
)
