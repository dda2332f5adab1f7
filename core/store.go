package core

import (
	"context"
	"time"
)

// Store 是存储的领域接口。
//
// 定义在领域层（core），由基础设施层（store）实现：
//   - store.MemoryStore 用于测试/单机
//   - store.RedisStore 为生产参考实现
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值，不存在返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，ttl <= 0 表示不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除 key（任意数据结构）
	Delete(ctx context.Context, key string) error

	// Exists 判断 key 是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// TTL 返回剩余存活时间；无过期时间返回 -1，不存在返回 ErrStoreNotFound
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Close 关闭连接/释放资源
	Close() error
}

// ScoredMember 是有序集合中的一个成员。
type ScoredMember struct {
	Member string
	Score  float64
}

// KeyValueStore 在 Store 基础上提供有序集合与哈希操作。
//
// 有序集合的读取顺序统一为：分数降序，同分时成员名降序（与 Redis ZREVRANGE 一致）。
// 所有带 maxItems 的写操作在写入后裁剪掉分数最低的成员，maxItems <= 0 表示不裁剪。
type KeyValueStore interface {
	Store

	// ZReplace 原子替换整个有序集合：读者只能看到旧快照或新快照。
	// members 为空时删除 key。
	ZReplace(ctx context.Context, key string, members []ScoredMember, maxItems int, ttl time.Duration) error

	// ZAdd 插入或覆盖成员分数，随后裁剪并刷新 TTL。
	ZAdd(ctx context.Context, key string, members []ScoredMember, maxItems int, ttl time.Duration) error

	// ZIncrBy 对单个成员做增量更新，随后裁剪并刷新 TTL，返回更新后的分数。
	ZIncrBy(ctx context.Context, key, member string, delta float64, maxItems int, ttl time.Duration) (float64, error)

	// ZIncrByIfExists 与 ZIncrBy 相同，但只在 key 已存在时执行，检查与更新是原子的。
	// key 不存在时返回 ok=false 且不创建 key。
	ZIncrByIfExists(ctx context.Context, key, member string, delta float64, maxItems int, ttl time.Duration) (score float64, ok bool, err error)

	// ZRevRange 按降序返回 [start, stop] 区间（含两端，stop = -1 表示到末尾）。
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)

	// ZRevRank 返回成员的降序名次（从 0 开始），不存在返回 ErrStoreNotFound。
	ZRevRank(ctx context.Context, key, member string) (int64, error)

	// ZScore 返回成员分数，不存在返回 ErrStoreNotFound。
	ZScore(ctx context.Context, key, member string) (float64, error)

	// ZCard 返回成员数量。
	ZCard(ctx context.Context, key string) (int64, error)

	// HIncrByFloat 对哈希字段做浮点增量并刷新 TTL。
	HIncrByFloat(ctx context.Context, key, field string, delta float64, ttl time.Duration) (float64, error)

	// HGetAll 读取整个哈希，不存在返回空 map。
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Store 错误定义（使用统一的 DomainError）
var (
	// ErrStoreNotFound 表示 key 或成员不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

	// ErrStoreNotSupported 表示操作不支持
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")
)

// IsStoreNotFound 检查错误是否为存储层的 NOT_FOUND
func IsStoreNotFound(err error) bool {
	domainErr := GetDomainError(err)
	return domainErr != nil && domainErr.Module == ModuleStore && domainErr.Code == ErrorCodeNotFound
}
