/**
 * Package cache 提供有界内存缓存
 *
 * 触发器匹配器用它缓存编译后的正则表达式，避免每个分析步骤重复编译
 */

package cache

import (
	"sync/atomic"
	"time"
)

/**
 * Cache 缓存接口
 *
 * 值类型由调用方决定
 */
type Cache[V any] interface {
	// Get 获取缓存值
	// Parameters:
	//   - key: 缓存键
	// Returns: V - 缓存值, bool - 是否找到
	Get(key string) (V, bool)

	// Set 设置缓存值
	// Parameters:
	//   - key: 缓存键
	//   - value: 缓存值
	//   - ttl: 过期时间（0表示永不过期）
	// Returns: error - 错误信息
	Set(key string, value V, ttl time.Duration) error

	// GetOrCompute 获取缓存值，不存在时调用 compute 生成并缓存
	GetOrCompute(key string, compute func() (V, error)) (V, error)

	// Delete 删除缓存
	Delete(key string) error

	// Clear 清空所有缓存
	Clear() error

	// Count 获取缓存项数量
	Count() int

	// Stop 停止缓存（清理资源）
	Stop()
}

/**
 * Stats 缓存统计信息
 *
 * 计数器使用原子操作，读取时取快照
 */
type Stats struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
}

// StatsSnapshot 统计快照
type StatsSnapshot struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Deletes   int64 `json:"deletes"`
	Evictions int64 `json:"evictions"`
}

func (s *Stats) recordHit()      { s.hits.Add(1) }
func (s *Stats) recordMiss()     { s.misses.Add(1) }
func (s *Stats) recordSet()      { s.sets.Add(1) }
func (s *Stats) recordDelete()   { s.deletes.Add(1) }
func (s *Stats) recordEviction() { s.evictions.Add(1) }

// Snapshot 获取统计信息快照
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Sets:      s.sets.Load(),
		Deletes:   s.deletes.Load(),
		Evictions: s.evictions.Load(),
	}
}

/**
 * HitRate 计算缓存命中率
 * Returns: float64 - 命中率（0-1之间）
 */
func (s StatsSnapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Reset 重置统计信息
func (s *Stats) Reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.sets.Store(0)
	s.deletes.Store(0)
	s.evictions.Store(0)
}
