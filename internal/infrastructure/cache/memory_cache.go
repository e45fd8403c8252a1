package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chenyang-zz/opwatch/pkg/logger"
	"go.uber.org/zap"
)

// ErrStopped 缓存已停止
var ErrStopped = errors.New("缓存已停止")

/**
 * entry 缓存项
 */
type entry[V any] struct {
	key string

	value V

	// expiration 过期时间（零值表示永不过期）
	expiration time.Time
}

func (e *entry[V]) isExpired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

/**
 * MemoryCache 内存缓存实现
 *
 * 特性：
 * - 并发安全（互斥锁保护）
 * - TTL 支持
 * - LRU 淘汰（链表头为最近使用）
 * - 可选的定期清理
 */
type MemoryCache[V any] struct {
	mu sync.Mutex

	// items 键到链表节点的映射
	items map[string]*list.Element

	// order LRU 顺序
	order *list.List

	// maxSize 最大缓存项数（0 表示无限制）
	maxSize int

	stats *Stats

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

/**
 * NewMemoryCache 创建内存缓存
 *
 * Parameters:
 *   - maxSize: 最大缓存项数（0 表示无限制）
 *   - cleanupInterval: 清理间隔（0 表示不定期清理）
 *
 * Returns: *MemoryCache[V] - 内存缓存实例
 */
func NewMemoryCache[V any](maxSize int, cleanupInterval time.Duration) *MemoryCache[V] {
	ctx, cancel := context.WithCancel(context.Background())

	c := &MemoryCache[V]{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		stats:   &Stats{},
		cancel:  cancel,
	}

	if cleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop(ctx, cleanupInterval)
		logger.Debug("内存缓存已启动",
			zap.Int("max_size", maxSize),
			zap.Duration("cleanup_interval", cleanupInterval))
	}

	return c
}

// Set 设置缓存值
func (c *MemoryCache[V]) Set(key string, value V, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	}
	c.setLocked(key, value, ttl)
	return nil
}

func (c *MemoryCache[V]) setLocked(key string, value V, ttl time.Duration) {
	var expiration time.Time
	if ttl > 0 {
		expiration = time.Now().Add(ttl)
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.expiration = expiration
		c.order.MoveToFront(el)
		c.stats.recordSet()
		return
	}

	if c.maxSize > 0 && c.order.Len() >= c.maxSize {
		c.evictOldestLocked()
	}

	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value, expiration: expiration})
	c.stats.recordSet()
}

/**
 * Get 获取缓存值
 *
 * 命中时把该项移到最近使用位置
 *
 * Parameters:
 *   - key: 缓存键
 *
 * Returns: V - 缓存值, bool - 是否找到
 */
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *MemoryCache[V]) getLocked(key string) (V, bool) {
	var zero V
	if c.stopped {
		return zero, false
	}

	el, ok := c.items[key]
	if !ok {
		c.stats.recordMiss()
		return zero, false
	}

	e := el.Value.(*entry[V])
	if e.isExpired(time.Now()) {
		c.removeLocked(el)
		c.stats.recordMiss()
		c.stats.recordEviction()
		return zero, false
	}

	c.order.MoveToFront(el)
	c.stats.recordHit()
	return e.value, true
}

/**
 * GetOrCompute 获取缓存值，未命中时生成并永久缓存
 *
 * compute 在锁内执行，同一个键只会生成一次；compute 返回错误时不缓存
 *
 * Parameters:
 *   - key: 缓存键
 *   - compute: 生成函数
 *
 * Returns: V - 缓存值, error - 生成错误或 ErrStopped
 */
func (c *MemoryCache[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	if c.stopped {
		return zero, ErrStopped
	}
	if v, ok := c.getLocked(key); ok {
		return v, nil
	}

	v, err := compute()
	if err != nil {
		return zero, err
	}
	c.setLocked(key, v, 0)
	return v, nil
}

// Delete 删除缓存
func (c *MemoryCache[V]) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	}
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
		c.stats.recordDelete()
	}
	return nil
}

// Clear 清空所有缓存
func (c *MemoryCache[V]) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	}
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Count 获取缓存项数量（包括尚未清理的过期项）
func (c *MemoryCache[V]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats 获取缓存统计
func (c *MemoryCache[V]) Stats() *Stats {
	return c.stats
}

func (c *MemoryCache[V]) evictOldestLocked() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.removeLocked(el)
	c.stats.recordEviction()
}

func (c *MemoryCache[V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[V])
	delete(c.items, e.key)
	c.order.Remove(el)
}

func (c *MemoryCache[V]) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// cleanup 清理过期缓存
func (c *MemoryCache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	deleted := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry[V]).isExpired(now) {
			c.removeLocked(el)
			c.stats.recordEviction()
			deleted++
		}
		el = next
	}

	if deleted > 0 {
		logger.Debug("清理过期缓存",
			zap.Int("count", deleted),
			zap.Int("remaining", c.order.Len()))
	}
}

// Stop 停止缓存并释放所有缓存项
func (c *MemoryCache[V]) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	snap := c.stats.Snapshot()
	logger.Debug("内存缓存已停止", zap.Float64("hit_rate", snap.HitRate()))
}
