/**
 * Package buffers 提供固定容量的环形缓冲区
 *
 * 用于保存最近的 N 条记录，写满后按 FIFO 顺序淘汰最旧的记录。
 */
package buffers

import "sync"

/**
 * RingBuffer 泛型环形缓冲区
 *
 * 并发安全：所有访问都由读写锁保护
 */
type RingBuffer[T any] struct {
	mu sync.RWMutex

	// entries 存储区
	entries []T

	// capacity 容量
	capacity int

	// head 下一次写入的位置
	head int

	// total 累计写入次数（单调递增）
	total int64
}

/**
 * NewRingBuffer 创建环形缓冲区
 *
 * Parameters:
 *   - capacity: 容量（小于 1 时按 1 处理）
 *
 * Returns: *RingBuffer[T] - 缓冲区实例
 */
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push 追加一条记录，满时覆盖最旧的记录
func (rb *RingBuffer[T]) Push(entry T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.entries) < rb.capacity {
		rb.entries = append(rb.entries, entry)
	} else {
		rb.entries[rb.head] = entry
	}
	rb.head = (rb.head + 1) % rb.capacity
	rb.total++
}

/**
 * Snapshot 按从旧到新的顺序返回当前内容的副本
 *
 * Returns: []T - 记录副本
 */
func (rb *RingBuffer[T]) Snapshot() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]T, 0, len(rb.entries))
	if len(rb.entries) < rb.capacity {
		return append(out, rb.entries...)
	}
	out = append(out, rb.entries[rb.head:]...)
	return append(out, rb.entries[:rb.head]...)
}

// Len 当前记录数
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

// Cap 容量
func (rb *RingBuffer[T]) Cap() int {
	return rb.capacity
}

// TotalAdded 累计写入次数（包括已被淘汰的）
func (rb *RingBuffer[T]) TotalAdded() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.total
}

// Clear 清空缓冲区
func (rb *RingBuffer[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries = rb.entries[:0]
	rb.head = 0
}
