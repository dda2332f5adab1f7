package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rushteam/bookrank/core"
)

// RedisStore 是 Redis 实现的 KeyValueStore，为排序缓存的参考实现。
//
// ZReplace 在 MULTI 事务内写入临时 key，再 RENAME 覆盖目标 key，
// 读者只会看到旧的或新的完整有序集合。
type RedisStore struct {
	client redis.UniversalClient
}

// RedisOptions 是 Redis 连接配置。
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "redis ping", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient 复用已有客户端（集群/哨兵等）。
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Name() string { return "redis" }

func notFound(err error) error {
	if errors.Is(err, redis.Nil) {
		return core.ErrStoreNotFound
	}
	return err
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, notFound(err)
	}
	return val, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// go-redis 对不存在的 key 返回 -2，对无过期时间的 key 返回 -1
	switch d {
	case -2:
		return 0, core.ErrStoreNotFound
	case -1:
		return -1, nil
	}
	return d, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func toZ(members []core.ScoredMember) []redis.Z {
	zs := make([]redis.Z, len(members))
	for i, sm := range members {
		zs[i] = redis.Z{Score: sm.Score, Member: sm.Member}
	}
	return zs
}

// capAndExpire 在事务内裁剪低分成员并刷新 TTL。
func capAndExpire(ctx context.Context, pipe redis.Pipeliner, key string, maxItems int, ttl time.Duration) {
	if maxItems > 0 {
		pipe.ZRemRangeByRank(ctx, key, 0, int64(-(maxItems + 1)))
	}
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
}

// hashTag 返回集群计算槽位所用的部分：第一个非空 {...} 的内容，没有时为整个 key。
func hashTag(key string) string {
	if i := strings.IndexByte(key, '{'); i >= 0 {
		if j := strings.IndexByte(key[i+1:], '}'); j > 0 {
			return key[i+1 : i+1+j]
		}
	}
	return key
}

// tempKey 生成与 key 同槽位的临时 key，集群下 RENAME 不会 CROSSSLOT。
// 不带 hash tag 却含有 '}' 的 key 无法包裹，集群下不支持。
func tempKey(key string) string {
	suffix := ":tmp:" + uuid.NewString()
	if hashTag(key) != key || strings.IndexByte(key, '}') >= 0 {
		return key + suffix
	}
	return "{" + key + "}" + suffix
}

func (r *RedisStore) ZReplace(ctx context.Context, key string, members []core.ScoredMember, maxItems int, ttl time.Duration) error {
	if len(members) == 0 {
		return r.client.Del(ctx, key).Err()
	}

	tmp := tempKey(key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, tmp, toZ(members)...)
		capAndExpire(ctx, pipe, tmp, maxItems, ttl)
		pipe.Rename(ctx, tmp, key)
		return nil
	})
	if err != nil {
		// 事务失败时尽量清理临时 key
		_ = r.client.Del(context.WithoutCancel(ctx), tmp).Err()
		return fmt.Errorf("redis zreplace %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) ZAdd(ctx context.Context, key string, members []core.ScoredMember, maxItems int, ttl time.Duration) error {
	if len(members) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, toZ(members)...)
		capAndExpire(ctx, pipe, key, maxItems, ttl)
		return nil
	})
	return err
}

func (r *RedisStore) ZIncrBy(ctx context.Context, key, member string, delta float64, maxItems int, ttl time.Duration) (float64, error) {
	var incr *redis.FloatCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.ZIncrBy(ctx, key, delta, member)
		capAndExpire(ctx, pipe, key, maxItems, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// zincrIfExists: KEYS[1]=key, ARGV=member, delta, maxItems, ttl(ms)。key 不存在返回 nil。
var zincrIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local score = redis.call('ZINCRBY', KEYS[1], ARGV[2], ARGV[1])
local cap = tonumber(ARGV[3])
if cap > 0 then
  redis.call('ZREMRANGEBYRANK', KEYS[1], 0, -(cap + 1))
end
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return score
`)

func (r *RedisStore) ZIncrByIfExists(ctx context.Context, key, member string, delta float64, maxItems int, ttl time.Duration) (float64, bool, error) {
	raw, err := zincrIfExists.Run(ctx, r.client, []string{key},
		member, strconv.FormatFloat(delta, 'f', -1, 64), maxItems, ttl.Milliseconds()).Text()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis zincr %s: %w", key, err)
	}
	return score, true, nil
}

func (r *RedisStore) ZRevRange(ctx context.Context, key string, start, stop int64) ([]core.ScoredMember, error) {
	zs, err := r.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, notFound(err)
	}
	out := make([]core.ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		out = append(out, core.ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

func (r *RedisStore) ZRevRank(ctx context.Context, key, member string) (int64, error) {
	rank, err := r.client.ZRevRank(ctx, key, member).Result()
	if err != nil {
		return 0, notFound(err)
	}
	return rank, nil
}

func (r *RedisStore) ZScore(ctx context.Context, key, member string) (float64, error) {
	score, err := r.client.ZScore(ctx, key, member).Result()
	if err != nil {
		return 0, notFound(err)
	}
	return score, nil
}

func (r *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	return r.client.ZCard(ctx, key).Result()
}

func (r *RedisStore) HIncrByFloat(ctx context.Context, key, field string, delta float64, ttl time.Duration) (float64, error) {
	var incr *redis.FloatCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrByFloat(ctx, key, field, delta)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

// 确保 RedisStore 实现了 core.KeyValueStore 接口
var _ core.KeyValueStore = (*RedisStore)(nil)
