package taste

import (
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/rushteam/bookrank/core"
)

// BuildTasteVector 用收藏与点赞记录构建 L2 归一化的口味向量。
//
// 每条行为的权重 = 基础权重 × exp(-天数/DecayDays)，超过 MaxAgeDays 的行为贡献为 0。
// 特征为 "genre:<体裁>" 和每个关键词的 "keyword:<词>"。没有行为时返回空向量。
func BuildTasteVector(userID int64, activity core.UserActivity, now time.Time, cfg Config) core.UserTasteVector {
	cfg = cfg.withDefaults()
	raw := make(map[string]float64)

	accumulate := func(items []core.ReviewActivity, base float64) {
		for _, a := range items {
			w := base * activityDecay(a.OccurredAt, now, cfg)
			if w == 0 {
				continue
			}
			if g := strings.TrimSpace(a.Genre); g != "" {
				raw[core.FeatureGenrePrefix+g] += w
			}
			for _, kw := range a.Keywords {
				if kw = strings.TrimSpace(kw); kw != "" {
					raw[core.FeatureKeywordPrefix+kw] += w
				}
			}
		}
	}
	accumulate(activity.Bookmarked, cfg.BookmarkWeight)
	accumulate(activity.Liked, cfg.LikeWeight)

	return core.UserTasteVector{
		UserID:       userID,
		Features:     normalize(raw),
		CalculatedAt: now,
	}
}

// activityDecay 按整天数计算衰减，未来时间按 0 天处理。
func activityDecay(at, now time.Time, cfg Config) float64 {
	days := int(now.Sub(at).Hours() / 24)
	if days < 0 {
		days = 0
	}
	if days > cfg.MaxAgeDays {
		return 0
	}
	return math.Exp(-float64(days) / cfg.DecayDays)
}

// normalize 返回 L2 归一化后的新 map；全零向量返回空 map。
func normalize(raw map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(raw))
	if len(raw) == 0 {
		return out
	}
	keys := make([]string, 0, len(raw))
	values := make([]float64, 0, len(raw))
	for k, v := range raw {
		keys = append(keys, k)
		values = append(values, v)
	}
	norm := floats.Norm(values, 2)
	if norm == 0 {
		return out
	}
	floats.Scale(1/norm, values)
	for i, k := range keys {
		out[k] = values[i]
	}
	return out
}
