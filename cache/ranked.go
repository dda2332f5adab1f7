package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/pkg/metrics"
)

// RankedCache 是按用户/上下文分 key 的排序结果缓存（成员 -> 分数）。
//
//   - Save 整体替换，截断到 MaxItems，并刷新 TTL；并发读只会看到旧快照或新快照
//   - IncrementScore 单成员增量更新，之后重新应用截断与 TTL
//   - Get 按分数降序、游标分页
type RankedCache struct {
	Store    core.KeyValueStore
	Domain   core.Domain
	MaxItems int           // 默认 500
	TTL      time.Duration // 默认 1 小时
}

// Stats 是单个缓存 key 的状态。
type Stats struct {
	Key         string        `json:"key"`
	Exists      bool          `json:"exists"`
	CachedItems int64         `json:"cachedItems"`
	TTL         time.Duration `json:"ttl"`
}

// NewRankedCache 创建排序缓存。
func NewRankedCache(store core.KeyValueStore, domain core.Domain, maxItems int, ttl time.Duration) *RankedCache {
	return &RankedCache{Store: store, Domain: domain, MaxItems: maxItems, TTL: ttl}
}

func (c *RankedCache) maxItems() int {
	if c.MaxItems <= 0 {
		return 500
	}
	return c.MaxItems
}

func (c *RankedCache) ttl() time.Duration {
	if c.TTL <= 0 {
		return time.Hour
	}
	return c.TTL
}

// Save 原子替换 key 的全部内容。scores 为空时删除 key。
func (c *RankedCache) Save(ctx context.Context, key string, scores map[string]float64) error {
	members := make([]core.ScoredMember, 0, len(scores))
	for m, s := range scores {
		members = append(members, core.ScoredMember{Member: m, Score: s})
	}
	if err := c.Store.ZReplace(ctx, key, members, c.maxItems(), c.ttl()); err != nil {
		metrics.CacheWriteErrors.WithLabelValues(string(c.Domain), "save").Inc()
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// SaveCandidates 以 FinalScore 保存已排序的候选。
func (c *RankedCache) SaveCandidates(ctx context.Context, key string, candidates []core.Candidate) error {
	scores := make(map[string]float64, len(candidates))
	for _, cand := range candidates {
		scores[Member(c.Domain, cand.ItemID)] = cand.FinalScore
	}
	return c.Save(ctx, key, scores)
}

// IncrementScore 对单个成员做增量更新，返回新分数。
func (c *RankedCache) IncrementScore(ctx context.Context, key, member string, delta float64) (float64, error) {
	score, err := c.Store.ZIncrBy(ctx, key, member, delta, c.maxItems(), c.ttl())
	if err != nil {
		metrics.CacheWriteErrors.WithLabelValues(string(c.Domain), "increment").Inc()
		return 0, fmt.Errorf("increment %s/%s: %w", key, member, err)
	}
	return score, nil
}

// IncrementIfExists 只在排序 key 存在时增量更新，不会为过期的排序创建单成员集合。
func (c *RankedCache) IncrementIfExists(ctx context.Context, key, member string, delta float64) (float64, bool, error) {
	score, ok, err := c.Store.ZIncrByIfExists(ctx, key, member, delta, c.maxItems(), c.ttl())
	if err != nil {
		metrics.CacheWriteErrors.WithLabelValues(string(c.Domain), "increment").Inc()
		return 0, false, fmt.Errorf("increment %s/%s: %w", key, member, err)
	}
	return score, ok, nil
}

// Get 按分数降序返回一页结果。
//
// cursor 是上一页最后一项的 ID（"123" 或 "book:123"），为空从第一名开始；
// 游标成员已不在缓存中时同样从头开始。名次从 1 开始，带游标时延续上一页编号。
// limit <= 0 返回全部。
func (c *RankedCache) Get(ctx context.Context, key string, cursor *string, limit int) (core.Page, error) {
	start := int64(0)
	if cursor != nil && *cursor != "" {
		if id, ok := ParseMember(*cursor); ok {
			rank, err := c.Store.ZRevRank(ctx, key, Member(c.Domain, id))
			switch {
			case err == nil:
				start = rank + 1
			case core.IsStoreNotFound(err):
			default:
				metrics.CacheLookups.WithLabelValues(string(c.Domain), "error").Inc()
				return core.Page{}, fmt.Errorf("get %s: %w", key, err)
			}
		}
	}

	stop := int64(-1)
	if limit > 0 {
		// 多取一个用于判断是否还有下一页
		stop = start + int64(limit)
	}
	members, err := c.Store.ZRevRange(ctx, key, start, stop)
	if err != nil {
		metrics.CacheLookups.WithLabelValues(string(c.Domain), "error").Inc()
		return core.Page{}, fmt.Errorf("get %s: %w", key, err)
	}

	hasMore := false
	if limit > 0 && len(members) > limit {
		hasMore = true
		members = members[:limit]
	}

	items := make([]core.RecommendationResult, 0, len(members))
	for i, m := range members {
		id, ok := ParseMember(m.Member)
		if !ok {
			continue
		}
		items = append(items, core.RecommendationResult{
			ItemID: id,
			Score:  m.Score,
			Rank:   int(start) + i + 1,
		})
	}

	result := "hit"
	if len(items) == 0 {
		result = "miss"
	}
	metrics.CacheLookups.WithLabelValues(string(c.Domain), result).Inc()

	page := core.Page{Items: items}
	if hasMore && len(items) > 0 {
		next := strconv.FormatInt(items[len(items)-1].ItemID, 10)
		page.NextCursor = &next
	}
	return page, nil
}

// Score 返回单个物品的缓存分数。
func (c *RankedCache) Score(ctx context.Context, key string, itemID int64) (float64, bool, error) {
	s, err := c.Store.ZScore(ctx, key, Member(c.Domain, itemID))
	if core.IsStoreNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return s, true, nil
}

// Clear 删除 key。
func (c *RankedCache) Clear(ctx context.Context, key string) error {
	return c.Store.Delete(ctx, key)
}

// Exists 报告 key 是否存在且未过期。
func (c *RankedCache) Exists(ctx context.Context, key string) (bool, error) {
	return c.Store.Exists(ctx, key)
}

// Stats 返回 key 的成员数与剩余 TTL。
func (c *RankedCache) Stats(ctx context.Context, key string) (Stats, error) {
	st := Stats{Key: key}
	exists, err := c.Store.Exists(ctx, key)
	if err != nil || !exists {
		return st, err
	}
	st.Exists = true
	if st.CachedItems, err = c.Store.ZCard(ctx, key); err != nil {
		return st, err
	}
	ttl, err := c.Store.TTL(ctx, key)
	if err != nil && !core.IsStoreNotFound(err) {
		return st, err
	}
	st.TTL = ttl
	return st, nil
}
