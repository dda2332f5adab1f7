package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/rushteam/bookrank/core"
)

// ExposureTracker 记录用户最近看过的书评，用于 feed 去重。
// 存储为有序集合 recommend:review:exposed:user:<uid>，分数为曝光时间（毫秒）。
type ExposureTracker struct {
	Store    core.KeyValueStore
	MaxItems int           // 默认 500，只保留最近的曝光
	TTL      time.Duration // 默认 7 天
	Window   int           // 过滤时读取的最近曝光数，默认 200
}

// ExposureKey 返回曝光记录 key。
func ExposureKey(userID int64) string {
	return "recommend:review:exposed:user:" + strconv.FormatInt(userID, 10)
}

// Record 记录一批曝光。
func (t *ExposureTracker) Record(ctx context.Context, userID int64, itemIDs []int64, now time.Time) error {
	if len(itemIDs) == 0 {
		return nil
	}
	ts := float64(now.UnixMilli())
	members := make([]core.ScoredMember, 0, len(itemIDs))
	for _, id := range itemIDs {
		members = append(members, core.ScoredMember{Member: strconv.FormatInt(id, 10), Score: ts})
	}
	maxItems := t.MaxItems
	if maxItems <= 0 {
		maxItems = 500
	}
	ttl := t.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return t.Store.ZAdd(ctx, ExposureKey(userID), members, maxItems, ttl)
}

// Exposed 返回最近曝光过的物品集合。
func (t *ExposureTracker) Exposed(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	window := t.Window
	if window <= 0 {
		window = 200
	}
	members, err := t.Store.ZRevRange(ctx, ExposureKey(userID), 0, int64(window-1))
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(members))
	for _, m := range members {
		if id, ok := ParseMember(m.Member); ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}
