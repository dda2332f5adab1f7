package taste

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto"
	json "github.com/goccy/go-json"

	"github.com/rushteam/bookrank/core"
)

const keyPrefix = "review_circle:"

// VectorKey 口味向量 key（JSON）
func VectorKey(userID int64) string {
	return keyPrefix + "taste_vector:" + strconv.FormatInt(userID, 10)
}

// SimilarUsersKey 相似用户 key（ZSET，member 为 userID，score 为相似度）
func SimilarUsersKey(userID int64) string {
	return keyPrefix + "similar_users:" + strconv.FormatInt(userID, 10)
}

// TopicsKey 书评圈 key（JSON）
func TopicsKey(userID int64, window core.Window) string {
	return keyPrefix + "topics:" + strconv.FormatInt(userID, 10) + ":" + string(window)
}

const (
	defaultL1TTL       = time.Minute
	defaultNumCounters = 1e5
	defaultMaxCost     = 32 << 20
	defaultBufferItems = 64
)

// Cache 读写口味向量、相似用户与书评圈。
//
// 后端为 KeyValueStore（生产为 Redis），前面挂一层进程内 ristretto 缓存，
// 批处理写入时同步刷新本地副本。key 不存在时读取返回空值而不是错误。
type Cache struct {
	store core.KeyValueStore
	l1    *ristretto.Cache
	l1TTL time.Duration
	cfg   Config
}

// NewCache 创建缓存。l1TTL <= 0 时默认 1 分钟。
func NewCache(store core.KeyValueStore, cfg Config, l1TTL time.Duration) (*Cache, error) {
	if l1TTL <= 0 {
		l1TTL = defaultL1TTL
	}
	l1, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: defaultNumCounters,
		MaxCost:     defaultMaxCost,
		BufferItems: defaultBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("create taste l1 cache: %w", err)
	}
	return &Cache{store: store, l1: l1, l1TTL: l1TTL, cfg: cfg.withDefaults()}, nil
}

// Close 释放本地缓存，不关闭后端存储。
func (c *Cache) Close() {
	c.l1.Close()
}

func (c *Cache) remember(key string, value any, cost int64) {
	c.l1.SetWithTTL(key, value, cost, c.l1TTL)
}

// getJSON 先查本地缓存再查后端；found=false 表示 key 不存在。
func (c *Cache) getJSON(ctx context.Context, key string, out any) (bool, error) {
	if v, ok := c.l1.Get(key); ok {
		if raw, ok := v.([]byte); ok {
			return true, json.Unmarshal(raw, out)
		}
	}
	raw, err := c.store.Get(ctx, key)
	if core.IsStoreNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	c.remember(key, raw, int64(len(raw)))
	return true, nil
}

func (c *Cache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		return err
	}
	c.remember(key, raw, int64(len(raw)))
	return nil
}

// SaveVector 保存口味向量，TTL 为 VectorTTL。
func (c *Cache) SaveVector(ctx context.Context, v core.UserTasteVector) error {
	return c.setJSON(ctx, VectorKey(v.UserID), v, c.cfg.VectorTTL)
}

// DeleteVector 删除用户的口味向量（后端与本地）。
func (c *Cache) DeleteVector(ctx context.Context, userID int64) error {
	key := VectorKey(userID)
	c.l1.Del(key)
	c.l1.Wait()
	return c.store.Delete(ctx, key)
}

// Vector 读取口味向量，不存在时 found=false。
func (c *Cache) Vector(ctx context.Context, userID int64) (core.UserTasteVector, bool, error) {
	var v core.UserTasteVector
	found, err := c.getJSON(ctx, VectorKey(userID), &v)
	if err != nil || !found {
		return core.UserTasteVector{}, false, err
	}
	if v.Features == nil {
		v.Features = map[string]float64{}
	}
	return v, true, nil
}

// SaveSimilarUsers 整体替换相似用户集合。空列表会删除 key。
func (c *Cache) SaveSimilarUsers(ctx context.Context, userID int64, users []core.SimilarUser) error {
	key := SimilarUsersKey(userID)
	members := make([]core.ScoredMember, len(users))
	for i, u := range users {
		members[i] = core.ScoredMember{Member: strconv.FormatInt(u.UserID, 10), Score: u.SimilarityScore}
	}
	if err := c.store.ZReplace(ctx, key, members, 0, c.cfg.SimilarTTL); err != nil {
		return err
	}
	if len(users) == 0 {
		c.l1.Del(key)
		return nil
	}
	c.remember(key, append([]core.SimilarUser(nil), users...), int64(len(users)*16))
	return nil
}

// SimilarUsers 按相似度降序读取相似用户，不存在时返回空列表。
func (c *Cache) SimilarUsers(ctx context.Context, userID int64) ([]core.SimilarUser, error) {
	key := SimilarUsersKey(userID)
	if v, ok := c.l1.Get(key); ok {
		if users, ok := v.([]core.SimilarUser); ok {
			return append([]core.SimilarUser(nil), users...), nil
		}
	}
	members, err := c.store.ZRevRange(ctx, key, 0, -1)
	if core.IsStoreNotFound(err) {
		return []core.SimilarUser{}, nil
	}
	if err != nil {
		return nil, err
	}
	users := make([]core.SimilarUser, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			continue
		}
		users = append(users, core.SimilarUser{UserID: id, SimilarityScore: m.Score})
	}
	if len(users) > 0 {
		c.remember(key, append([]core.SimilarUser(nil), users...), int64(len(users)*16))
	}
	return users, nil
}

// SaveCircle 保存书评圈快照，TTL 为 TopicTTL。
func (c *Cache) SaveCircle(ctx context.Context, circle core.ReviewCircle) error {
	return c.setJSON(ctx, TopicsKey(circle.UserID, circle.Window), circle, c.cfg.TopicTTL)
}

// Circle 读取书评圈快照，不存在时 found=false。
func (c *Cache) Circle(ctx context.Context, userID int64, window core.Window) (core.ReviewCircle, bool, error) {
	var circle core.ReviewCircle
	found, err := c.getJSON(ctx, TopicsKey(userID, window), &circle)
	if err != nil || !found {
		return core.ReviewCircle{}, false, err
	}
	if circle.Topics == nil {
		circle.Topics = []core.ReviewCircleTopic{}
	}
	return circle, true, nil
}

// Invalidate 删除用户的全部口味数据（后端与本地）。
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	keys := []string{VectorKey(userID), SimilarUsersKey(userID)}
	for _, w := range []core.Window{core.Window24h, core.Window7d, core.Window30d} {
		keys = append(keys, TopicsKey(userID, w))
	}
	for _, k := range keys {
		c.l1.Del(k)
		if err := c.store.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
