// Package config 加载排序核心的全部可调参数。
//
// 三层覆盖，后者优先：
//
//  1. 结构体默认值（Default）
//  2. YAML 文件：BOOKRANK_CONFIG 指定，否则当前目录下的 config.yaml（可选）
//  3. 环境变量：BOOKRANK_RANKING_CACHE_TTL=2h → ranking.cache_ttl
//
// 加载完成后用 validator 校验。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/bookrank/feast"
	"github.com/rushteam/bookrank/pkg/logging"
	"github.com/rushteam/bookrank/rank"
	"github.com/rushteam/bookrank/recall"
	"github.com/rushteam/bookrank/rerank"
	"github.com/rushteam/bookrank/service"
	"github.com/rushteam/bookrank/store"
	"github.com/rushteam/bookrank/supervisor"
	"github.com/rushteam/bookrank/taste"
)

const (
	// EnvPrefix 环境变量前缀
	EnvPrefix = "BOOKRANK_"
	// PathEnvVar 指定配置文件路径的环境变量
	PathEnvVar = "BOOKRANK_CONFIG"
	// DefaultPath 未指定时尝试读取的配置文件
	DefaultPath = "config.yaml"
)

// Config 是全部配置。
type Config struct {
	Redis    RedisConfig            `koanf:"redis"`
	Ranking  RankingConfig          `koanf:"ranking"`
	Sampling rerank.SamplingConfig  `koanf:"sampling"`
	Exposure ExposureConfig         `koanf:"exposure"`
	Session  SessionConfig          `koanf:"session"`
	Taste    taste.Config           `koanf:"taste"`
	Batch    BatchConfig            `koanf:"batch"`
	Feast    feast.Config           `koanf:"feast"`
	Breaker  recall.BreakerSettings `koanf:"breaker"`
	Tracking service.EventWeights   `koanf:"tracking"`
	Logging  logging.Config         `koanf:"logging"`

	Supervisor supervisor.TreeConfig `koanf:"supervisor"`

	// Sources 声明 HTTP 候选来源（图谱遍历、全文检索等外部服务），只能在配置文件中设置
	Sources []RemoteSourceConfig `koanf:"sources" validate:"dive"`
}

// RedisConfig 存储后端与 Redis 连接。
type RedisConfig struct {
	Backend      string        `koanf:"backend" validate:"oneof=redis memory"`
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db" validate:"gte=0"`
	PoolSize     int           `koanf:"pool_size" validate:"gte=0"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// Options 转换为 store.RedisOptions。
func (r RedisConfig) Options() store.RedisOptions {
	return store.RedisOptions{
		Addr:         r.Addr,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
	}
}

// RankingConfig 排序与缓存参数。
type RankingConfig struct {
	CacheTTL          time.Duration      `koanf:"cache_ttl" validate:"gt=0"`
	MaxItems          int                `koanf:"max_items" validate:"gt=0"`
	MaxCandidates     int                `koanf:"max_candidates" validate:"gte=0"`
	PerSourceLimit    int                `koanf:"per_source_limit" validate:"gt=0"`
	SourceTimeout     time.Duration      `koanf:"source_timeout" validate:"gt=0"`
	EngagementCeiling float64            `koanf:"engagement_ceiling" validate:"gt=0"`
	BookWeights       map[string]float64 `koanf:"book_weights" validate:"dive,gte=0"`
	ReviewWeights     map[string]float64 `koanf:"review_weights" validate:"dive,gte=0"`
	// BookEligibility / ReviewEligibility 是候选资格表达式，为空不过滤
	BookEligibility   string `koanf:"book_eligibility"`
	ReviewEligibility string `koanf:"review_eligibility"`
	BookPopularKey    string `koanf:"book_popular_key" validate:"required"`
	ReviewPopularKey  string `koanf:"review_popular_key" validate:"required"`
	BookBlocklistKey  string `koanf:"book_blocklist_key"`
	// BookPipeline / ReviewPipeline 指向 YAML 定义的候选链，为空使用内置链
	BookPipeline   string `koanf:"book_pipeline"`
	ReviewPipeline string `koanf:"review_pipeline"`
	// MaxPerAuthor 书评候选中同一作者的最大数量，0 不限制
	MaxPerAuthor int `koanf:"max_per_author" validate:"gte=0"`
}

// RemoteSourceConfig 是一个 HTTP 候选来源。Name 可在候选链 YAML 中引用。
type RemoteSourceConfig struct {
	Domain   string        `koanf:"domain" validate:"oneof=book review"`
	Name     string        `koanf:"name" validate:"required"`
	Endpoint string        `koanf:"endpoint" validate:"required,url"`
	Timeout  time.Duration `koanf:"timeout"`
}

// ExposureConfig 书评 feed 曝光记录。
type ExposureConfig struct {
	MaxItems    int           `koanf:"max_items" validate:"gt=0"`
	TTL         time.Duration `koanf:"ttl" validate:"gt=0"`
	FilterLimit int           `koanf:"filter_limit" validate:"gt=0"`
}

// SessionConfig 会话实时加权。
type SessionConfig struct {
	TTL time.Duration `koanf:"ttl" validate:"gt=0"`
}

// BatchConfig 批处理任务。
type BatchConfig struct {
	TasteInterval  time.Duration `koanf:"taste_interval" validate:"gt=0"`
	CircleInterval time.Duration `koanf:"circle_interval" validate:"gt=0"`
	RunOnStartup   bool          `koanf:"run_on_startup"`
	Parallelism    int           `koanf:"parallelism" validate:"gt=0"`
	// RatePerSecond 每秒处理的用户数上限，0 不限速
	RatePerSecond float64  `koanf:"rate_per_second" validate:"gte=0"`
	Burst         int      `koanf:"burst" validate:"gte=0"`
	Windows       []string `koanf:"windows" validate:"dive,oneof=24h 7d 30d"`
}

// Default 返回默认配置。
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			Backend:      store.BackendRedis,
			Addr:         "localhost:6379",
			PoolSize:     20,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Ranking: RankingConfig{
			CacheTTL:          time.Hour,
			MaxItems:          500,
			MaxCandidates:     500,
			PerSourceLimit:    100,
			SourceTimeout:     500 * time.Millisecond,
			EngagementCeiling: 0.5,
			BookWeights:       rank.DefaultBookWeights(),
			ReviewWeights:     rank.DefaultReviewWeights(),
			BookPopularKey:    "popular:books",
			ReviewPopularKey:  "popular:reviews",
			BookBlocklistKey:  "blocklist:books",
			MaxPerAuthor:      3,
		},
		Sampling: rerank.DefaultSamplingConfig(),
		Exposure: ExposureConfig{
			MaxItems:    500,
			TTL:         7 * 24 * time.Hour,
			FilterLimit: 200,
		},
		Session: SessionConfig{TTL: 30 * time.Minute},
		Taste:   taste.DefaultConfig(),
		Batch: BatchConfig{
			TasteInterval:  24 * time.Hour,
			CircleInterval: time.Hour,
			Parallelism:    8,
			RatePerSecond:  50,
			Burst:          10,
			Windows:        []string{"24h", "7d"},
		},
		Feast:    feast.DefaultConfig(),
		Breaker:  recall.DefaultBreakerSettings(),
		Tracking: service.DefaultEventWeights(),
		Logging:  logging.DefaultConfig(),

		Supervisor: supervisor.DefaultTreeConfig(),
	}
}

// Load 按 BOOKRANK_CONFIG 或 ./config.yaml 加载配置，文件不存在时只用默认值与环境变量。
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom 从指定 YAML 文件加载配置，path 为空跳过文件层。
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform(k.Keys())), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitLists(k, "batch.windows"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// envTransform 把 BOOKRANK_SAMPLING_TIER1_SIZE 映射到已知 key sampling.tier1.size。
// 未知变量按第一个下划线拆成 section.key。
func envTransform(known []string) func(string) string {
	flat := make(map[string]string, len(known))
	for _, key := range known {
		flat[strings.ReplaceAll(key, ".", "_")] = key
	}
	return func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if s == "config" {
			return ""
		}
		if key, ok := flat[s]; ok {
			return key
		}
		return strings.Replace(s, "_", ".", 1)
	}
}

// splitLists 把环境变量中逗号分隔的字符串转为列表。
func splitLists(k *koanf.Koanf, paths ...string) error {
	for _, path := range paths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var items []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		if err := k.Set(path, items); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

var validate = validator.New()

// Validate 校验字段约束。
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if len(c.Ranking.BookWeights) == 0 || len(c.Ranking.ReviewWeights) == 0 {
		return fmt.Errorf("ranking weights must not be empty")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		key := src.Domain + "/" + src.Name
		if seen[key] {
			return fmt.Errorf("duplicate %s source %q", src.Domain, src.Name)
		}
		seen[key] = true
	}
	return nil
}
