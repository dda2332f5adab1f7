package filter

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrank/cache"
	"github.com/rushteam/bookrank/core"
)

// ExposedFilter 是书评 feed 的已曝光过滤器，作用在已排序的一页结果上，而不是候选上：
// 排序缓存需要保留完整排名，曝光只影响本次展示。
//
//   - 去掉最近曝光过的书评；全部曝光过时返回原页，避免空 feed
//   - 返回的页会被记为新的曝光
//   - 读写曝光失败只记录日志
type ExposedFilter struct {
	Tracker *cache.ExposureTracker
	Logger  zerolog.Logger
}

func (f *ExposedFilter) Name() string { return "filter.exposed" }

// Apply 过滤并记录曝光。匿名用户原样返回。
func (f *ExposedFilter) Apply(ctx context.Context, userID *int64, items []core.RecommendationResult, now time.Time) []core.RecommendationResult {
	if f.Tracker == nil || userID == nil || len(items) == 0 {
		return items
	}

	seen, err := f.Tracker.Exposed(ctx, *userID)
	if err != nil {
		f.Logger.Warn().Err(err).Int64("user_id", *userID).Msg("read exposures failed, serving unfiltered page")
		seen = nil
	}
	out := Unseen(items, seen)

	ids := make([]int64, 0, len(out))
	for _, it := range out {
		ids = append(ids, it.ItemID)
	}
	if err := f.Tracker.Record(ctx, *userID, ids, now); err != nil {
		f.Logger.Warn().Err(err).Int64("user_id", *userID).Msg("record exposures failed")
	}
	return out
}

// Unseen 去掉已曝光的结果；全部都曝光过时返回原列表。
func Unseen(items []core.RecommendationResult, exposed map[int64]struct{}) []core.RecommendationResult {
	if len(exposed) == 0 || len(items) == 0 {
		return items
	}
	out := make([]core.RecommendationResult, 0, len(items))
	for _, it := range items {
		if _, ok := exposed[it.ItemID]; !ok {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return items
	}
	return out
}
