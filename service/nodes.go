package service

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/feature"
	"github.com/rushteam/bookrank/filter"
	"github.com/rushteam/bookrank/pipeline"
	"github.com/rushteam/bookrank/pkg/conv"
	"github.com/rushteam/bookrank/rank"
	"github.com/rushteam/bookrank/recall"
	"github.com/rushteam/bookrank/rerank"
)

// NodeEnv 是 YAML 定义的 Pipeline 节点可以引用的运行时依赖。
type NodeEnv struct {
	Domain   core.Domain
	Store    core.KeyValueStore
	Sources  map[string]recall.CandidateSource // 按名称引用
	Metadata feature.MetadataProvider
	Logger   zerolog.Logger
}

// NewNodeFactory 注册全部节点类型：
//
//	recall.aggregate   sources, per_source_limit, timeout_ms, strict
//	filter.expr        expr
//	filter.blacklist   ids, key
//	filter.user_block  prefix
//	enrich.metadata    timeout_ms, cache_size, cache_ttl_s
//	rank.hybrid        weights, engagement_ceiling
//	rerank.topn        n
//	rerank.diversity   max_per_author
func NewNodeFactory(env NodeEnv) *pipeline.NodeFactory {
	f := pipeline.NewNodeFactory()
	adapter := filter.NewStoreAdapter(env.Store, 0)

	f.Register("recall.aggregate", func(cfg map[string]any) (pipeline.Node, error) {
		p := conv.Params(cfg)
		names := p.Strings("sources")
		if len(names) == 0 {
			return nil, fmt.Errorf("recall.aggregate: sources is required")
		}
		sources := make([]recall.CandidateSource, 0, len(names))
		for _, name := range names {
			src, ok := env.Sources[name]
			if !ok {
				return nil, fmt.Errorf("recall.aggregate: unknown source %q", name)
			}
			sources = append(sources, src)
		}
		return &recall.Aggregator{
			Domain:         env.Domain,
			Sources:        sources,
			PerSourceLimit: p.Int("per_source_limit", 100),
			Timeout:        p.Millis("timeout_ms", 500*time.Millisecond),
			Strict:         p.Bool("strict", env.Domain == core.DomainBook),
			Logger:         env.Logger,
		}, nil
	})

	f.Register("filter.expr", func(cfg map[string]any) (pipeline.Node, error) {
		expr := conv.Params(cfg).String("expr", "")
		if expr == "" {
			return nil, fmt.Errorf("filter.expr: expr is required")
		}
		ef, err := filter.NewExprFilter(expr)
		if err != nil {
			return nil, err
		}
		return &filter.FilterNode{Filters: []filter.Filter{ef}, Logger: env.Logger}, nil
	})

	f.Register("filter.blacklist", func(cfg map[string]any) (pipeline.Node, error) {
		p := conv.Params(cfg)
		bl := filter.NewBlacklistFilter(p.Int64s("ids"), adapter, p.String("key", ""))
		return &filter.FilterNode{Filters: []filter.Filter{bl}, Logger: env.Logger}, nil
	})

	f.Register("filter.user_block", func(cfg map[string]any) (pipeline.Node, error) {
		ub := filter.NewUserBlockFilter(adapter, conv.Params(cfg).String("prefix", "user:block"))
		return &filter.FilterNode{Filters: []filter.Filter{ub}, Logger: env.Logger}, nil
	})

	f.Register("enrich.metadata", func(cfg map[string]any) (pipeline.Node, error) {
		p := conv.Params(cfg)
		return &feature.EnrichNode{
			Provider: env.Metadata,
			Cache:    feature.NewMemoryCache(p.Int("cache_size", 10000), p.Seconds("cache_ttl_s", time.Hour)),
			Timeout:  p.Millis("timeout_ms", 300*time.Millisecond),
			Logger:   env.Logger,
		}, nil
	})

	f.Register("rank.hybrid", func(cfg map[string]any) (pipeline.Node, error) {
		p := conv.Params(cfg)
		ceiling := p.Float("engagement_ceiling", 0)
		catalog := rank.BookScorers(ceiling)
		weights := rank.DefaultBookWeights()
		if env.Domain == core.DomainReview {
			catalog, weights = rank.ReviewScorers(ceiling), rank.DefaultReviewWeights()
		}
		if w := p.Float64Map("weights"); w != nil {
			weights = w
		}
		scorer, err := rank.NewHybridScorer(catalog, weights, env.Logger)
		if err != nil {
			return nil, err
		}
		return &rank.HybridNode{Scorer: scorer}, nil
	})

	f.Register("rerank.topn", func(cfg map[string]any) (pipeline.Node, error) {
		return &rerank.TopNNode{N: conv.Params(cfg).Int("n", 0)}, nil
	})

	f.Register("rerank.diversity", func(cfg map[string]any) (pipeline.Node, error) {
		return &rerank.Diversity{MaxPerAuthor: conv.Params(cfg).Int("max_per_author", 3)}, nil
	})

	return f
}
