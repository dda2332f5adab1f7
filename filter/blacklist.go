package filter

import (
	"context"

	"github.com/rushteam/bookrank/core"
)

// BlacklistFilter 过滤被下架/屏蔽的物品。
// 来源：内存中的 ItemIDs，以及 Store 中 Key 对应的 ID 列表（可选）。
type BlacklistFilter struct {
	ItemIDs map[int64]struct{}
	Store   *StoreAdapter
	Key     string // 例如 "blocklist:books"
}

// NewBlacklistFilter 创建黑名单过滤器。
func NewBlacklistFilter(itemIDs []int64, adapter *StoreAdapter, key string) *BlacklistFilter {
	set := make(map[int64]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		set[id] = struct{}{}
	}
	return &BlacklistFilter{ItemIDs: set, Store: adapter, Key: key}
}

func (f *BlacklistFilter) Name() string { return "filter.blacklist" }

func (f *BlacklistFilter) ShouldFilter(ctx context.Context, _ *core.RecommendContext, c *core.Candidate) (bool, error) {
	if _, ok := f.ItemIDs[c.ItemID]; ok {
		return true, nil
	}
	if f.Store == nil || f.Key == "" {
		return false, nil
	}
	set, err := f.Store.IDSet(ctx, f.Key)
	if err != nil {
		return false, err
	}
	_, ok := set[c.ItemID]
	return ok, nil
}
