package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rushteam/bookrank/core"
)

// MemoryStore 是内存实现的 KeyValueStore，用于测试/开发/单机部署。
// 支持 TTL，进程重启后数据丢失。
//
// 有序集合替换时先在锁外构建完整快照，再在写锁内整体换入，
// 因此并发读只会看到旧快照或新快照。
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]*entry
	now     func() time.Time
	clean   *time.Ticker
	stopped chan struct{}
	once    sync.Once
}

type entry struct {
	value    []byte
	zset     map[string]float64
	hash     map[string]float64
	expireAt time.Time // 零值表示不过期
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryOption 配置 MemoryStore。
type MemoryOption func(*MemoryStore)

// WithClock 替换时钟，便于测试 TTL。
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	ms := &MemoryStore{
		data:    make(map[string]*entry),
		now:     time.Now,
		clean:   time.NewTicker(10 * time.Second),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}
	go ms.cleanup()
	return ms
}

func (m *MemoryStore) Name() string { return "memory" }

// live 返回未过期的 entry，调用方需持有锁。
func (m *MemoryStore) live(key string) (*entry, bool) {
	e, ok := m.data[key]
	if !ok || e.expired(m.now()) {
		return nil, false
	}
	return e, true
}

func (m *MemoryStore) expireAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.live(key)
	if !ok || e.value == nil {
		return nil, core.ErrStoreNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = &entry{value: buf, expireAt: m.expireAt(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.live(key)
	return ok, nil
}

func (m *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.live(key)
	if !ok {
		return 0, core.ErrStoreNotFound
	}
	if e.expireAt.IsZero() {
		return -1, nil
	}
	return e.expireAt.Sub(m.now()), nil
}

func (m *MemoryStore) Close() error {
	m.once.Do(func() {
		m.clean.Stop()
		close(m.stopped)
	})
	return nil
}

func (m *MemoryStore) cleanup() {
	for {
		select {
		case <-m.stopped:
			return
		case <-m.clean.C:
			m.mu.Lock()
			now := m.now()
			for k, e := range m.data {
				if e.expired(now) {
					delete(m.data, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

// sortMembers 按分数降序、同分成员名降序排列，与 Redis ZREVRANGE 保持一致。
func sortMembers(z map[string]float64) []core.ScoredMember {
	out := make([]core.ScoredMember, 0, len(z))
	for member, score := range z {
		out = append(out, core.ScoredMember{Member: member, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Member > out[j].Member
	})
	return out
}

// trim 删除分数最低的成员直到不超过 maxItems。
func trim(z map[string]float64, maxItems int) {
	if maxItems <= 0 || len(z) <= maxItems {
		return
	}
	sorted := sortMembers(z)
	for _, sm := range sorted[maxItems:] {
		delete(z, sm.Member)
	}
}

func (m *MemoryStore) ZReplace(_ context.Context, key string, members []core.ScoredMember, maxItems int, ttl time.Duration) error {
	if len(members) == 0 {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return nil
	}

	z := make(map[string]float64, len(members))
	for _, sm := range members {
		z[sm.Member] = sm.Score
	}
	trim(z, maxItems)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = &entry{zset: z, expireAt: m.expireAt(ttl)}
	return nil
}

// zsetForWrite 返回可写的有序集合，不存在或类型不符时新建。调用方需持有写锁。
func (m *MemoryStore) zsetForWrite(key string) *entry {
	e, ok := m.live(key)
	if !ok || e.zset == nil {
		e = &entry{zset: make(map[string]float64)}
		m.data[key] = e
	}
	return e
}

func (m *MemoryStore) ZAdd(_ context.Context, key string, members []core.ScoredMember, maxItems int, ttl time.Duration) error {
	if len(members) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.zsetForWrite(key)
	for _, sm := range members {
		e.zset[sm.Member] = sm.Score
	}
	trim(e.zset, maxItems)
	if ttl > 0 {
		e.expireAt = m.expireAt(ttl)
	}
	return nil
}

func (m *MemoryStore) ZIncrBy(_ context.Context, key, member string, delta float64, maxItems int, ttl time.Duration) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.zsetForWrite(key)
	e.zset[member] += delta
	score := e.zset[member]
	trim(e.zset, maxItems)
	if ttl > 0 {
		e.expireAt = m.expireAt(ttl)
	}
	return score, nil
}

func (m *MemoryStore) ZIncrByIfExists(_ context.Context, key, member string, delta float64, maxItems int, ttl time.Duration) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok || len(e.zset) == 0 {
		return 0, false, nil
	}
	e.zset[member] += delta
	score := e.zset[member]
	trim(e.zset, maxItems)
	if ttl > 0 {
		e.expireAt = m.expireAt(ttl)
	}
	return score, true, nil
}

func (m *MemoryStore) ZRevRange(_ context.Context, key string, start, stop int64) ([]core.ScoredMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.live(key)
	if !ok || len(e.zset) == 0 {
		return nil, nil
	}
	sorted := sortMembers(e.zset)

	n := int64(len(sorted))
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}
	out := make([]core.ScoredMember, stop-start+1)
	copy(out, sorted[start:stop+1])
	return out, nil
}

func (m *MemoryStore) ZRevRank(_ context.Context, key, member string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.live(key)
	if !ok {
		return 0, core.ErrStoreNotFound
	}
	if _, ok := e.zset[member]; !ok {
		return 0, core.ErrStoreNotFound
	}
	for i, sm := range sortMembers(e.zset) {
		if sm.Member == member {
			return int64(i), nil
		}
	}
	return 0, core.ErrStoreNotFound
}

func (m *MemoryStore) ZScore(_ context.Context, key, member string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.live(key)
	if !ok {
		return 0, core.ErrStoreNotFound
	}
	score, ok := e.zset[member]
	if !ok {
		return 0, core.ErrStoreNotFound
	}
	return score, nil
}

func (m *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.live(key)
	if !ok {
		return 0, nil
	}
	return int64(len(e.zset)), nil
}

func (m *MemoryStore) HIncrByFloat(_ context.Context, key, field string, delta float64, ttl time.Duration) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok || e.hash == nil {
		e = &entry{hash: make(map[string]float64)}
		m.data[key] = e
	}
	e.hash[field] += delta
	if ttl > 0 {
		e.expireAt = m.expireAt(ttl)
	}
	return e.hash[field], nil
}

func (m *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]string)
	e, ok := m.live(key)
	if !ok {
		return result, nil
	}
	for field, v := range e.hash {
		result[field] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return result, nil
}

var _ core.KeyValueStore = (*MemoryStore)(nil)
