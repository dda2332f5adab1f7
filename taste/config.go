// Package taste 计算用户口味向量、相似用户以及书评圈热门话题。
//
// 计算部分（BuildTasteVector / FindSimilarUsers / AggregateTopics）是纯函数，
// 读写 Redis 与访问活动数据源的部分由 Cache 与 Engine 承担。
package taste

import "time"

// Config 口味与话题计算参数
type Config struct {
	BookmarkWeight float64       `koanf:"bookmark_weight" validate:"gte=0"`
	LikeWeight     float64       `koanf:"like_weight" validate:"gte=0"`
	DecayDays      float64       `koanf:"decay_days" validate:"gt=0"`   // 指数衰减常数（天）
	MaxAgeDays     int           `koanf:"max_age_days" validate:"gt=0"` // 超过该天数的行为贡献为 0
	Threshold      float64       `koanf:"threshold" validate:"gte=0,lte=1"`
	TopN           int           `koanf:"top_n" validate:"gt=0"`
	MinReviewCount int           `koanf:"min_review_count" validate:"gte=1"`
	MaxTopics      int           `koanf:"max_topics" validate:"gt=0"`
	UnknownAuthor  float64       `koanf:"unknown_author_similarity" validate:"gte=0,lte=1"`
	VectorTTL      time.Duration `koanf:"vector_ttl"`
	SimilarTTL     time.Duration `koanf:"similar_ttl"`
	TopicTTL       time.Duration `koanf:"topic_ttl"`
}

// DefaultConfig 返回默认参数。
func DefaultConfig() Config {
	return Config{
		BookmarkWeight: 1.0,
		LikeWeight:     0.6,
		DecayDays:      90,
		MaxAgeDays:     180,
		Threshold:      0.1,
		TopN:           50,
		MinReviewCount: 2,
		MaxTopics:      20,
		UnknownAuthor:  0.5,
		VectorTTL:      7 * 24 * time.Hour,
		SimilarTTL:     24 * time.Hour,
		TopicTTL:       time.Hour,
	}
}

// withDefaults 把零值字段补成默认值。
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BookmarkWeight == 0 && c.LikeWeight == 0 {
		c.BookmarkWeight, c.LikeWeight = d.BookmarkWeight, d.LikeWeight
	}
	if c.DecayDays <= 0 {
		c.DecayDays = d.DecayDays
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = d.MaxAgeDays
	}
	if c.TopN <= 0 {
		c.TopN = d.TopN
	}
	if c.MinReviewCount <= 0 {
		c.MinReviewCount = d.MinReviewCount
	}
	if c.MaxTopics <= 0 {
		c.MaxTopics = d.MaxTopics
	}
	if c.UnknownAuthor <= 0 {
		c.UnknownAuthor = d.UnknownAuthor
	}
	if c.VectorTTL <= 0 {
		c.VectorTTL = d.VectorTTL
	}
	if c.SimilarTTL <= 0 {
		c.SimilarTTL = d.SimilarTTL
	}
	if c.TopicTTL <= 0 {
		c.TopicTTL = d.TopicTTL
	}
	return c
}
