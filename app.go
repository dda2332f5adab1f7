package bookrank

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrank/cache"
	"github.com/rushteam/bookrank/config"
	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/feast"
	"github.com/rushteam/bookrank/feature"
	"github.com/rushteam/bookrank/filter"
	"github.com/rushteam/bookrank/pipeline"
	"github.com/rushteam/bookrank/pkg/logging"
	"github.com/rushteam/bookrank/rank"
	"github.com/rushteam/bookrank/recall"
	"github.com/rushteam/bookrank/rerank"
	"github.com/rushteam/bookrank/service"
	"github.com/rushteam/bookrank/store"
	"github.com/rushteam/bookrank/supervisor"
	"github.com/rushteam/bookrank/taste"
)

// 内置来源名，可在 YAML 候选链的 recall.aggregate.sources 中引用。
const (
	SourcePopularity   = "popularity"
	SourceReviewCircle = "review_circle"
)

// Collaborators 是排序核心之外的数据来源，由宿主应用注入。
type Collaborators struct {
	// BookSources / ReviewSources 按声明顺序参与召回（图谱、语义等），每个来源自动套上熔断
	BookSources   []recall.CandidateSource
	ReviewSources []recall.CandidateSource
	// Activity 为空时不创建口味引擎与批处理
	Activity taste.ActivitySource
	// Feast 为空且 feast.enabled 时按配置连接
	Feast feast.Client
	// Store 为空时按 redis 配置打开
	Store core.KeyValueStore
}

// App 是组装好的排序核心。
type App struct {
	Config     *config.Config
	Store      core.KeyValueStore
	Books      *service.Recommender
	Reviews    *service.Recommender
	Tracker    *service.Tracker
	Taste      *taste.Engine
	Supervisor *supervisor.Tree

	tasteCache *taste.Cache
	feast      feast.Client
	logger     zerolog.Logger
}

// New 按配置组装全部组件。
func New(ctx context.Context, cfg *config.Config, c Collaborators) (*App, error) {
	logging.Init(cfg.Logging)
	logger := logging.Logger()

	app := &App{Config: cfg, Store: c.Store, logger: logger.With().Str("component", "app").Logger()}
	if app.Store == nil {
		kv, err := store.Open(ctx, cfg.Redis.Backend, cfg.Redis.Options())
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		app.Store = kv
	}

	var metadata feature.MetadataProvider
	app.feast = c.Feast
	if app.feast == nil && cfg.Feast.Enabled {
		client, err := feast.NewFromConfig(cfg.Feast)
		if err != nil {
			app.logger.Warn().Err(err).Msg("feast unavailable, freshness uses neutral values")
		} else {
			app.feast = client
		}
	}
	if app.feast != nil {
		metadata = feast.NewMetadataProvider(app.feast, cfg.Feast)
	}

	books, reviews := slices.Clone(c.BookSources), slices.Clone(c.ReviewSources)
	for _, rs := range cfg.Sources {
		src := &recall.RemoteSource{SourceName: rs.Name, Endpoint: rs.Endpoint, Timeout: rs.Timeout}
		if core.Domain(rs.Domain) == core.DomainReview {
			reviews = append(reviews, src)
		} else {
			books = append(books, src)
		}
	}
	bookSources := guardAll(books, cfg.Breaker, logger)
	reviewSources := guardAll(reviews, cfg.Breaker, logger)
	bookSources[SourcePopularity] = &recall.PopularitySource{Store: app.Store, Key: cfg.Ranking.BookPopularKey, Tag: core.SourcePopularity}
	reviewSources[SourcePopularity] = &recall.PopularitySource{Store: app.Store, Key: cfg.Ranking.ReviewPopularKey, Tag: core.SourceBookPopular}
	bookOrder := append(names(books), SourcePopularity)
	reviewOrder := names(reviews)

	if c.Activity != nil {
		tc, err := taste.NewCache(app.Store, cfg.Taste, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("taste cache: %w", err)
		}
		app.tasteCache = tc
		app.Taste = taste.NewEngine(c.Activity, tc, cfg.Taste, logger, taste.WithBreaker(cfg.Breaker))
		reviewSources[SourceReviewCircle] = &recall.CircleSource{Reader: app.Taste}
		reviewOrder = append(reviewOrder, SourceReviewCircle)
	}
	reviewOrder = append(reviewOrder, SourcePopularity)

	sessions := &cache.SessionBoosts{Store: app.Store, TTL: cfg.Session.TTL}
	bookCache := cache.NewRankedCache(app.Store, core.DomainBook, cfg.Ranking.MaxItems, cfg.Ranking.CacheTTL)
	reviewCache := cache.NewRankedCache(app.Store, core.DomainReview, cfg.Ranking.MaxItems, cfg.Ranking.CacheTTL)

	bookDeps, err := app.deps(core.DomainBook, cfg.Ranking.BookPipeline, bookOrder, bookSources, metadata)
	if err != nil {
		return nil, err
	}
	bookDeps.Cache, bookDeps.Sessions = bookCache, sessions
	app.Books = service.NewBookRecommender(bookDeps)

	reviewDeps, err := app.deps(core.DomainReview, cfg.Ranking.ReviewPipeline, reviewOrder, reviewSources, metadata)
	if err != nil {
		return nil, err
	}
	reviewDeps.Cache, reviewDeps.Sessions = reviewCache, sessions
	reviewDeps.Exposure = &filter.ExposedFilter{
		Tracker: &cache.ExposureTracker{
			Store:    app.Store,
			MaxItems: cfg.Exposure.MaxItems,
			TTL:      cfg.Exposure.TTL,
			Window:   cfg.Exposure.FilterLimit,
		},
		Logger: logger,
	}
	reviewDeps.Sampler = rerank.NewWindowSampler(cfg.Sampling)
	app.Reviews = service.NewReviewRecommender(reviewDeps)

	app.Tracker = service.NewTracker(bookCache, sessions, cfg.Tracking, logger)

	if app.Taste != nil {
		app.Supervisor = supervisor.NewTree(logger, cfg.Supervisor)
		batch := supervisor.BatchConfig{
			RunOnStartup: cfg.Batch.RunOnStartup,
			Parallelism:  cfg.Batch.Parallelism,
			RateLimit:    cfg.Batch.RatePerSecond,
			Burst:        cfg.Batch.Burst,
		}
		profile := batch
		profile.Interval = cfg.Batch.TasteInterval
		app.Supervisor.AddBatchService(supervisor.NewTasteProfileService(app.Taste, profile, logger))

		circles := batch
		circles.Interval = cfg.Batch.CircleInterval
		windows := make([]core.Window, 0, len(cfg.Batch.Windows))
		for _, w := range cfg.Batch.Windows {
			windows = append(windows, core.ParseWindow(w))
		}
		app.Supervisor.AddBatchService(supervisor.NewReviewCircleService(app.Taste, windows, circles, logger))
	}
	return app, nil
}

// deps 构建一个业务域的候选链与回退来源。path 非空时从 YAML 读取候选链。
func (a *App) deps(domain core.Domain, path string, order []string, sources map[string]recall.CandidateSource, metadata feature.MetadataProvider) (service.Deps, error) {
	var (
		pc  *pipeline.Config
		err error
	)
	if path != "" {
		if pc, err = pipeline.LoadFromYAML(path); err != nil {
			return service.Deps{}, fmt.Errorf("%s pipeline: %w", domain, err)
		}
	} else {
		pc = DefaultPipeline(domain, order, a.Config.Ranking, metadata != nil)
	}

	factory := service.NewNodeFactory(service.NodeEnv{
		Domain:   domain,
		Store:    a.Store,
		Sources:  sources,
		Metadata: metadata,
		Logger:   a.logger,
	})
	p, err := pc.BuildPipeline(factory)
	if err != nil {
		return service.Deps{}, fmt.Errorf("%s pipeline: %w", domain, err)
	}

	a.logger.Info().Str("pipeline", p.Describe()).Msg("pipeline ready")

	deps := service.Deps{
		Pipeline:      p,
		Fallback:      sources[SourcePopularity],
		FallbackLimit: a.Config.Ranking.PerSourceLimit,
		Logger:        a.logger,
	}
	if node, ok := p.Stage(pipeline.KindRank).(*rank.HybridNode); ok {
		deps.Scorer = node.Scorer
	}
	return deps, nil
}

// DefaultPipeline 返回内置候选链：
//
//	book:   recall.aggregate → filter.expr? → filter.blacklist → enrich.metadata? → rank.hybrid → rerank.topn
//	review: recall.aggregate → filter.user_block → filter.expr? → enrich.metadata? → rank.hybrid → rerank.diversity? → rerank.topn
func DefaultPipeline(domain core.Domain, sources []string, r config.RankingConfig, enrich bool) *pipeline.Config {
	var pc pipeline.Config
	pc.Pipeline.Name = string(domain)

	add := func(typ string, cfg map[string]any) {
		pc.Pipeline.Nodes = append(pc.Pipeline.Nodes, pipeline.NodeConfig{Type: typ, Config: cfg})
	}
	srcs := make([]any, len(sources))
	for i, s := range sources {
		srcs[i] = s
	}
	add("recall.aggregate", map[string]any{
		"sources":          srcs,
		"per_source_limit": r.PerSourceLimit,
		"timeout_ms":       r.SourceTimeout.Milliseconds(),
	})

	weights, expr := r.BookWeights, r.BookEligibility
	if domain == core.DomainReview {
		weights, expr = r.ReviewWeights, r.ReviewEligibility
		add("filter.user_block", nil)
	}
	if expr != "" {
		add("filter.expr", map[string]any{"expr": expr})
	}
	if domain == core.DomainBook && r.BookBlocklistKey != "" {
		add("filter.blacklist", map[string]any{"key": r.BookBlocklistKey})
	}
	if enrich {
		add("enrich.metadata", nil)
	}

	w := make(map[string]any, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	add("rank.hybrid", map[string]any{"weights": w, "engagement_ceiling": r.EngagementCeiling})

	if domain == core.DomainReview && r.MaxPerAuthor > 0 {
		add("rerank.diversity", map[string]any{"max_per_author": r.MaxPerAuthor})
	}
	add("rerank.topn", map[string]any{"n": r.MaxCandidates})
	return &pc
}

func guardAll(srcs []recall.CandidateSource, s recall.BreakerSettings, logger zerolog.Logger) map[string]recall.CandidateSource {
	out := make(map[string]recall.CandidateSource, len(srcs)+2)
	for _, src := range srcs {
		out[src.Name()] = recall.Guard(src, s, logger)
	}
	return out
}

func names(srcs []recall.CandidateSource) []string {
	out := make([]string, 0, len(srcs)+2)
	for _, src := range srcs {
		out = append(out, src.Name())
	}
	return out
}

// Close 释放存储与缓存。
func (a *App) Close() error {
	if a.tasteCache != nil {
		a.tasteCache.Close()
	}
	if a.feast != nil {
		_ = a.feast.Close()
	}
	return a.Store.Close()
}
