// Package feature 为候选补齐打分所需的元数据。
package feature

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrank/core"
	"github.com/rushteam/bookrank/pipeline"
)

// MetadataProvider 批量读取物品的出版/发表时间，由 feast.MetadataProvider 实现。
type MetadataProvider interface {
	PublishedAt(ctx context.Context, domain core.Domain, itemIDs []int64) (map[int64]time.Time, error)
}

// EnrichNode 为缺少 CreatedAt 的候选补齐时间，供新鲜度信号使用。
//
//   - 先查本地缓存，未命中的批量访问 Provider
//   - Provider 失败或超时只记录日志，候选保持缺失（新鲜度按中性值计算）
type EnrichNode struct {
	Provider MetadataProvider
	Cache    *MemoryCache
	Timeout  time.Duration // 默认 300ms
	Logger   zerolog.Logger
}

func (n *EnrichNode) Name() string        { return "enrich.metadata" }
func (n *EnrichNode) Kind() pipeline.Kind { return pipeline.KindEnrich }

func (n *EnrichNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	candidates []core.Candidate,
) ([]core.Candidate, error) {
	if n.Provider == nil || len(candidates) == 0 {
		return candidates, nil
	}
	domain := rctx.Domain

	var missing []int64
	for i := range candidates {
		c := &candidates[i]
		if c.CreatedAt != nil {
			continue
		}
		if n.Cache != nil {
			if t, ok := n.Cache.Get(domain, c.ItemID); ok {
				c.CreatedAt = &t
				continue
			}
		}
		missing = append(missing, c.ItemID)
	}
	if len(missing) == 0 {
		return candidates, nil
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := core.Try(n.Provider.PublishedAt(fetchCtx, domain, missing))
	found := res.Degrade(nil, func(err error) {
		n.Logger.Warn().Err(err).Str("domain", string(domain)).Int("items", len(missing)).
			Msg("metadata lookup failed, freshness falls back to neutral")
	})
	if len(found) == 0 {
		return candidates, nil
	}

	for i := range candidates {
		c := &candidates[i]
		if c.CreatedAt != nil {
			continue
		}
		if t, ok := found[c.ItemID]; ok {
			c.CreatedAt = &t
			if n.Cache != nil {
				n.Cache.Set(domain, c.ItemID, t)
			}
		}
	}
	return candidates, nil
}
