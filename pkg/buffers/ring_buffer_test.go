package buffers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRingBuffer_Push 测试未满时的写入顺序
func TestRingBuffer_Push(t *testing.T) {
	rb := NewRingBuffer[int](5)
	rb.Push(1)
	rb.Push(2)
	rb.Push(3)

	assert.Equal(t, []int{1, 2, 3}, rb.Snapshot())
	assert.Equal(t, 3, rb.Len())
	assert.Equal(t, 5, rb.Cap())
}

// TestRingBuffer_Eviction 测试写满后淘汰最旧的记录
func TestRingBuffer_Eviction(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 1; i <= 7; i++ {
		rb.Push(i)
	}

	assert.Equal(t, []int{5, 6, 7}, rb.Snapshot())
	assert.Equal(t, int64(7), rb.TotalAdded())
}

// TestRingBuffer_Empty 测试空缓冲区
func TestRingBuffer_Empty(t *testing.T) {
	rb := NewRingBuffer[string](0)
	assert.Equal(t, 1, rb.Cap(), "容量小于 1 时按 1 处理")

	assert.Empty(t, rb.Snapshot())
}

// TestRingBuffer_Clear 测试清空
func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer[int](2)
	rb.Push(1)
	rb.Push(2)
	rb.Push(3)
	rb.Clear()

	assert.Equal(t, 0, rb.Len())
	rb.Push(9)
	assert.Equal(t, []int{9}, rb.Snapshot())
}

// TestRingBuffer_SnapshotIsCopy 测试快照与内部存储隔离
func TestRingBuffer_SnapshotIsCopy(t *testing.T) {
	rb := NewRingBuffer[int](2)
	rb.Push(1)
	snap := rb.Snapshot()
	snap[0] = 100

	assert.Equal(t, []int{1}, rb.Snapshot())
}

// TestRingBuffer_Concurrent 测试并发写入
func TestRingBuffer_Concurrent(t *testing.T) {
	rb := NewRingBuffer[int](50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rb.Push(i)
				_ = rb.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, rb.Len())
	assert.Equal(t, int64(800), rb.TotalAdded())
}
