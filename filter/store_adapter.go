package filter

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rushteam/bookrank/core"
)

// StoreAdapter 从 core.Store 读取 JSON 编码的 ID 列表（[1,2,3]），
// 结果在本地按 key 缓存 TTL 时长，避免每个候选都访问一次存储。
type StoreAdapter struct {
	store core.Store
	cache *expirable.LRU[string, map[int64]struct{}]
}

// NewStoreAdapter 创建适配器。ttl <= 0 时默认 30 秒。
func NewStoreAdapter(s core.Store, ttl time.Duration) *StoreAdapter {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StoreAdapter{
		store: s,
		cache: expirable.NewLRU[string, map[int64]struct{}](1024, nil, ttl),
	}
}

// IDSet 返回 key 下的 ID 集合，key 不存在为空集合。
func (a *StoreAdapter) IDSet(ctx context.Context, key string) (map[int64]struct{}, error) {
	if set, ok := a.cache.Get(key); ok {
		return set, nil
	}
	data, err := a.store.Get(ctx, key)
	if core.IsStoreNotFound(err) {
		set := map[int64]struct{}{}
		a.cache.Add(key, set)
		return set, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	a.cache.Add(key, set)
	return set, nil
}
