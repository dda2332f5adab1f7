package feature

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rushteam/bookrank/core"
)

type cacheKey struct {
	domain core.Domain
	id     int64
}

// MemoryCache 是元数据的本地 LRU 缓存，带过期时间。
// 出版/发表时间几乎不变，命中后不再访问远程特征服务。
type MemoryCache struct {
	lru *expirable.LRU[cacheKey, time.Time]
}

// NewMemoryCache 创建缓存。maxSize <= 0 时默认 10000，ttl <= 0 时默认 1 小时。
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryCache{lru: expirable.NewLRU[cacheKey, time.Time](maxSize, nil, ttl)}
}

func (c *MemoryCache) Get(domain core.Domain, id int64) (time.Time, bool) {
	return c.lru.Get(cacheKey{domain, id})
}

func (c *MemoryCache) Set(domain core.Domain, id int64, t time.Time) {
	c.lru.Add(cacheKey{domain, id}, t)
}

func (c *MemoryCache) Len() int { return c.lru.Len() }
