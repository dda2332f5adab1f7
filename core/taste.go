package core

import (
	"math"
	"time"
)

// Window 是书评圈话题的聚合时间窗口。
type Window string

const (
	Window24h Window = "24h"
	Window7d  Window = "7d"
	Window30d Window = "30d"
)

// ParseWindow 解析窗口，未知值回退到 7d。
func ParseWindow(s string) Window {
	switch Window(s) {
	case Window24h, Window7d, Window30d:
		return Window(s)
	default:
		return Window7d
	}
}

// Duration 返回窗口长度。
func (w Window) Duration() time.Duration {
	switch w {
	case Window24h:
		return 24 * time.Hour
	case Window30d:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// 特征 key 前缀
const (
	FeatureGenrePrefix   = "genre:"
	FeatureKeywordPrefix = "keyword:"
)

// UserTasteVector 是用户的稀疏口味向量。
// 非空向量的 L2 范数为 1；没有活动时 Features 为空 map。
type UserTasteVector struct {
	UserID       int64              `json:"userId"`
	Features     map[string]float64 `json:"features"`
	CalculatedAt time.Time          `json:"calculatedAt"`
}

// IsEmpty 报告向量是否为空。
func (v UserTasteVector) IsEmpty() bool { return len(v.Features) == 0 }

// Norm 返回向量的 L2 范数。
func (v UserTasteVector) Norm() float64 {
	var sum float64
	for _, w := range v.Features {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// SimilarUser 是相似用户及其相似度（0~1）。
type SimilarUser struct {
	UserID          int64   `json:"userId"`
	SimilarityScore float64 `json:"similarityScore"`
}

// ReviewCircleTopic 是相似用户圈子内的热门关键词。
// Score 为累加值，不做归一化。
type ReviewCircleTopic struct {
	Keyword        string    `json:"keyword"`
	ReviewCount    int       `json:"reviewCount"`
	Score          float64   `json:"score"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// ReviewCircle 是某个用户在某个窗口下的书评圈快照。
type ReviewCircle struct {
	UserID           int64               `json:"userId"`
	Window           Window              `json:"window"`
	Topics           []ReviewCircleTopic `json:"topics"`
	SimilarUserCount int                 `json:"similarUserCount"`
	CalculatedAt     time.Time           `json:"calculatedAt"`
}

// ReviewActivity 是一次收藏/点赞行为对应的书评信息。
type ReviewActivity struct {
	ReviewID   int64
	Genre      string
	Keywords   []string
	OccurredAt time.Time
}

// UserActivity 是构建口味向量所需的用户行为。
type UserActivity struct {
	Bookmarked []ReviewActivity
	Liked      []ReviewActivity
}

// ReviewWithKeywords 是相似用户近期发表的书评。
type ReviewWithKeywords struct {
	ReviewID  int64
	UserID    int64
	BookID    int64
	Genre     string
	Keywords  []string
	LikeCount int64
	CreatedAt time.Time
}
