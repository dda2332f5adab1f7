// Package store 提供 core.KeyValueStore 的实现：Redis（生产）与内存（测试/单机）。
//
// 接口定义在 core 包，此包只包含实现：
//
//	var kv core.KeyValueStore = store.NewMemoryStore()
package store

import (
	"context"
	"fmt"

	"github.com/rushteam/bookrank/core"
)

// Backend 存储后端类型
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Open 按后端类型创建存储。
func Open(ctx context.Context, backend string, opts RedisOptions) (core.KeyValueStore, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis, "":
		return NewRedisStore(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
