package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/rushteam/bookrank/core"
)

// SessionBoosts 是会话内的实时加权，按用户和业务域存为哈希：
// session:user:<uid>:books / session:user:<uid>:reviews，field 为物品 ID。
type SessionBoosts struct {
	Store core.KeyValueStore
	TTL   time.Duration // 默认 30 分钟，每次写入刷新
}

// SessionKey 返回会话加权 key。
func SessionKey(domain core.Domain, userID int64) string {
	return "session:user:" + strconv.FormatInt(userID, 10) + ":" + string(domain) + "s"
}

// Boost 累加一个物品的会话加权，返回新值。
func (s *SessionBoosts) Boost(ctx context.Context, domain core.Domain, userID, itemID int64, delta float64) (float64, error) {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return s.Store.HIncrByFloat(ctx, SessionKey(domain, userID), strconv.FormatInt(itemID, 10), delta, ttl)
}

// Load 读取用户的全部会话加权，key 不存在返回空 map。
func (s *SessionBoosts) Load(ctx context.Context, domain core.Domain, userID int64) (map[int64]float64, error) {
	raw, err := s.Store.HGetAll(ctx, SessionKey(domain, userID))
	if err != nil {
		return nil, err
	}
	out := make(map[int64]float64, len(raw))
	for field, v := range raw {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[id] = f
	}
	return out, nil
}
