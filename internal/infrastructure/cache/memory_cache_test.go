package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Cache[string] = (*MemoryCache[string])(nil)

/**
 * TestMemoryCache_SetGet 测试基本的 Set 和 Get 操作
 */
func TestMemoryCache_SetGet(t *testing.T) {
	cache := NewMemoryCache[string](100, 10*time.Minute)
	defer cache.Stop()

	require.NoError(t, cache.Set("key1", "value1", 0))

	value, found := cache.Get("key1")
	assert.True(t, found)
	assert.Equal(t, "value1", value)

	value, found = cache.Get("key2")
	assert.False(t, found)
	assert.Empty(t, value)

	// 覆盖写入不增加数量
	require.NoError(t, cache.Set("key1", "value2", 0))
	assert.Equal(t, 1, cache.Count())
	value, _ = cache.Get("key1")
	assert.Equal(t, "value2", value)
}

/**
 * TestMemoryCache_Expiration 测试 TTL 过期功能
 */
func TestMemoryCache_Expiration(t *testing.T) {
	cache := NewMemoryCache[string](100, 0)
	defer cache.Stop()

	require.NoError(t, cache.Set("key1", "value1", 50*time.Millisecond))

	_, found := cache.Get("key1")
	assert.True(t, found)

	time.Sleep(100 * time.Millisecond)

	_, found = cache.Get("key1")
	assert.False(t, found)
	assert.Equal(t, 0, cache.Count())
}

/**
 * TestMemoryCache_LRUEviction 测试 LRU 淘汰策略
 */
func TestMemoryCache_LRUEviction(t *testing.T) {
	cache := NewMemoryCache[int](3, 0)
	defer cache.Stop()

	require.NoError(t, cache.Set("key1", 1, 0))
	require.NoError(t, cache.Set("key2", 2, 0))
	require.NoError(t, cache.Set("key3", 3, 0))

	// 访问 key1，使其成为最近使用
	cache.Get("key1")

	// 添加第 4 项，淘汰最久未使用的 key2
	require.NoError(t, cache.Set("key4", 4, 0))

	_, found := cache.Get("key2")
	assert.False(t, found)
	_, found = cache.Get("key1")
	assert.True(t, found)
	assert.Equal(t, 3, cache.Count())
	assert.Equal(t, int64(1), cache.Stats().Snapshot().Evictions)
}

/**
 * TestMemoryCache_GetOrCompute 测试按需生成
 */
func TestMemoryCache_GetOrCompute(t *testing.T) {
	cache := NewMemoryCache[string](10, 0)
	defer cache.Stop()

	calls := 0
	compute := func() (string, error) {
		calls++
		return "computed", nil
	}

	v, err := cache.GetOrCompute("k", compute)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)

	v, err = cache.GetOrCompute("k", compute)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
	assert.Equal(t, 1, calls, "命中后不再生成")

	_, err = cache.GetOrCompute("bad", func() (string, error) {
		return "", errors.New("boom")
	})
	assert.Error(t, err)
	_, found := cache.Get("bad")
	assert.False(t, found, "生成失败不缓存")
}

/**
 * TestMemoryCache_DeleteClear 测试删除和清空
 */
func TestMemoryCache_DeleteClear(t *testing.T) {
	cache := NewMemoryCache[int](0, 0)
	defer cache.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, cache.Set(fmt.Sprintf("k%d", i), i, 0))
	}
	require.NoError(t, cache.Delete("k0"))
	require.NoError(t, cache.Delete("missing"))
	assert.Equal(t, 4, cache.Count())

	require.NoError(t, cache.Clear())
	assert.Equal(t, 0, cache.Count())
}

/**
 * TestMemoryCache_Stop 测试停止后的行为
 */
func TestMemoryCache_Stop(t *testing.T) {
	cache := NewMemoryCache[int](10, 10*time.Millisecond)
	require.NoError(t, cache.Set("k", 1, 0))

	cache.Stop()
	cache.Stop()

	assert.ErrorIs(t, cache.Set("k", 2, 0), ErrStopped)
	assert.ErrorIs(t, cache.Delete("k"), ErrStopped)
	assert.ErrorIs(t, cache.Clear(), ErrStopped)
	_, err := cache.GetOrCompute("k", func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrStopped)

	_, found := cache.Get("k")
	assert.False(t, found)
}

/**
 * TestMemoryCache_Cleanup 测试定期清理
 */
func TestMemoryCache_Cleanup(t *testing.T) {
	cache := NewMemoryCache[int](10, 20*time.Millisecond)
	defer cache.Stop()

	require.NoError(t, cache.Set("short", 1, 10*time.Millisecond))
	require.NoError(t, cache.Set("long", 2, 0))

	assert.Eventually(t, func() bool {
		return cache.Count() == 1
	}, time.Second, 10*time.Millisecond)
}

/**
 * TestMemoryCache_Stats 测试统计
 */
func TestMemoryCache_Stats(t *testing.T) {
	cache := NewMemoryCache[int](10, 0)
	defer cache.Stop()

	require.NoError(t, cache.Set("a", 1, 0))
	cache.Get("a")
	cache.Get("a")
	cache.Get("b")

	snap := cache.Stats().Snapshot()
	assert.Equal(t, int64(2), snap.Hits)
	assert.Equal(t, int64(1), snap.Misses)
	assert.Equal(t, int64(1), snap.Sets)
	assert.InDelta(t, 2.0/3.0, snap.HitRate(), 1e-9)

	cache.Stats().Reset()
	assert.Equal(t, StatsSnapshot{}, cache.Stats().Snapshot())
	assert.Equal(t, float64(0), StatsSnapshot{}.HitRate())
}

/**
 * TestMemoryCache_Concurrent 测试并发访问
 */
func TestMemoryCache_Concurrent(t *testing.T) {
	cache := NewMemoryCache[int](50, 0)
	defer cache.Stop()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%80)
				_, _ = cache.GetOrCompute(key, func() (int, error) { return i, nil })
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Count(), 50)
}
