package cache

import (
	"sync"
	"time"
)

// LocalCache 进程内 TTL 缓存
//
// 用于 DNSBL 判定结果、MX 解析结果等短期复用的数据：
// - 读多写少，sync.Map 实现无锁读取
// - 条目按 TTL 过期，后台定期清理
// - 超过容量时丢弃最早过期的条目
type LocalCache[V any] struct {
	data    sync.Map
	mu      sync.Mutex
	size    int
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存
//
// 参数:
//   - maxSize: 最大缓存条目数（<=0 表示不限制）
//   - ttl: 默认过期时间
func NewLocalCache[V any](maxSize int, ttl time.Duration) *LocalCache[V] {
	c := &LocalCache[V]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go c.cleanupLoop(time.Minute)

	return c
}

// Get 获取缓存值
func (c *LocalCache[V]) Get(key string) (V, bool) {
	var zero V
	val, ok := c.data.Load(key)
	if !ok {
		return zero, false
	}

	entry := val.(*cacheEntry[V])
	if c.now().After(entry.expiresAt) {
		c.deleteEntry(key, entry)
		return zero, false
	}

	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间
func (c *LocalCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	entry := &cacheEntry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, loaded := c.data.Swap(key, entry); !loaded {
		c.size++
	}
	if c.maxSize > 0 && c.size > c.maxSize {
		c.evictLocked()
	}
}

// Delete 删除缓存值
func (c *LocalCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, loaded := c.data.LoadAndDelete(key); loaded {
		c.size--
	}
}

// deleteEntry 仅当 key 仍指向该条目时删除，避免误删并发写入的新值
func (c *LocalCache[V]) deleteEntry(key any, entry *cacheEntry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data.CompareAndDelete(key, entry) {
		c.size--
	}
}

// Len 当前条目数（包含尚未清理的过期条目）
func (c *LocalCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Close 停止后台清理
func (c *LocalCache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// evictLocked 丢弃最早过期的条目，调用方需持有 mu
func (c *LocalCache[V]) evictLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	c.data.Range(func(key, value any) bool {
		entry := value.(*cacheEntry[V])
		if !found || entry.expiresAt.Before(oldestAt) {
			oldestKey = key.(string)
			oldestAt = entry.expiresAt
			found = true
		}
		return true
	})
	if found {
		c.data.Delete(oldestKey)
		c.size--
	}
}

// cleanupLoop 定期清理过期条目
func (c *LocalCache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := c.now()
			c.data.Range(func(key, value any) bool {
				entry := value.(*cacheEntry[V])
				if now.After(entry.expiresAt) {
					c.deleteEntry(key, entry)
				}
				return true
			})
		}
	}
}
