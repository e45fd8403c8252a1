package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenyang-zz/opwatch/pkg/logger"
	"go.uber.org/zap"
)

/**
 * BatchWriterConfig 批量写入器配置
 */
type BatchWriterConfig struct {
	// BatchSize 批量大小（达到此数量时自动刷新）
	BatchSize int

	// FlushInterval 刷新间隔（定时刷新）
	FlushInterval time.Duration

	// EventBuffer 缓冲区大小（channel 容量）
	EventBuffer int
}

/**
 * DefaultBatchWriterConfig 默认配置
 */
func DefaultBatchWriterConfig() BatchWriterConfig {
	return BatchWriterConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		EventBuffer:   1000,
	}
}

// withDefaults 用默认值补全非正数配置
func (c BatchWriterConfig) withDefaults() BatchWriterConfig {
	def := DefaultBatchWriterConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	return c
}

/**
 * BatchWriterStats 批量写入器统计信息
 */
type BatchWriterStats struct {
	// Accepted 进入通道的条目数
	Accepted int64

	// Dropped 通道已满或已停止时丢弃的条目数
	Dropped int64

	// Persisted 成功持久化的条目数
	Persisted int64

	// Failed 写入失败的条目数
	Failed int64

	// Flushes 刷新次数
	Flushes int64
}

/**
 * BatchWriter 批量写入器
 *
 * 缓冲日志条目并批量写入数据库；Write 不阻塞调用方
 */
type BatchWriter struct {
	repo   ActionRepository
	config BatchWriterConfig

	entryChan chan JournalEntry

	// bufMu 保护 buffer
	bufMu  sync.Mutex
	buffer []JournalEntry

	accepted  atomic.Int64
	dropped   atomic.Int64
	persisted atomic.Int64
	failed    atomic.Int64
	flushes   atomic.Int64

	// mu 保护 started 和通道关闭
	mu      sync.RWMutex
	started bool
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *zap.Logger
}

/**
 * NewBatchWriter 创建批量写入器
 *
 * Parameters:
 *   - repo: 动作日志仓储
 *   - config: 配置（非正数字段使用默认值）
 *
 * Returns: *BatchWriter - 批量写入器实例
 */
func NewBatchWriter(repo ActionRepository, config BatchWriterConfig) *BatchWriter {
	config = config.withDefaults()
	return &BatchWriter{
		repo:      repo,
		config:    config,
		entryChan: make(chan JournalEntry, config.EventBuffer),
		buffer:    make([]JournalEntry, 0, config.BatchSize),
		log:       logger.GetLogger().Named("journal"),
	}
}

/**
 * Start 启动批量写入器
 *
 * 停止后不能再次启动
 */
func (bw *BatchWriter) Start() {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.started || bw.stopped {
		bw.log.Warn("批量写入器已经启动或已停止", zap.Any("config", bw.config))
		return
	}
	bw.started = true

	ctx, cancel := context.WithCancel(context.Background())
	bw.cancel = cancel

	bw.wg.Add(2)
	go bw.processEntries()
	go bw.flushLoop(ctx)

	bw.log.Info("批量写入器已启动",
		zap.Int("batch_size", bw.config.BatchSize),
		zap.Duration("flush_interval", bw.config.FlushInterval),
		zap.Int("event_buffer", bw.config.EventBuffer),
	)
}

/**
 * Stop 停止批量写入器
 *
 * 停止接收新条目，写完通道和缓冲区中剩余的条目后返回
 */
func (bw *BatchWriter) Stop() {
	bw.mu.Lock()
	if !bw.started {
		bw.mu.Unlock()
		return
	}
	bw.started = false
	bw.stopped = true
	close(bw.entryChan)
	bw.mu.Unlock()

	bw.log.Info("正在停止批量写入器...")

	bw.cancel()
	bw.wg.Wait()

	bw.log.Info("批量写入器已停止",
		zap.Int64("persisted", bw.persisted.Load()),
		zap.Int64("failed", bw.failed.Load()),
		zap.Int64("dropped", bw.dropped.Load()),
	)
}

/**
 * Write 写入单个条目
 *
 * 非阻塞，通道已满或写入器未运行时丢弃
 *
 * Parameters:
 *   - entry: 日志条目
 *
 * Returns: bool - 是否被接收
 */
func (bw *BatchWriter) Write(entry JournalEntry) bool {
	bw.mu.RLock()
	defer bw.mu.RUnlock()

	if !bw.started {
		bw.dropped.Add(1)
		return false
	}

	select {
	case bw.entryChan <- entry:
		bw.accepted.Add(1)
		return true
	default:
		bw.dropped.Add(1)
		bw.log.Warn("批量写入器通道已满，动作丢弃",
			zap.String("session_id", entry.SessionID),
			zap.Int64("seq", entry.Seq),
		)
		return false
	}
}

/**
 * WriteBatch 批量写入条目
 *
 * Parameters:
 *   - entries: 日志条目
 *
 * Returns: int - 被接收的条目数
 */
func (bw *BatchWriter) WriteBatch(entries []JournalEntry) int {
	successCount := 0
	for _, entry := range entries {
		if bw.Write(entry) {
			successCount++
		}
	}
	return successCount
}

// ForceFlush 立即把缓冲区写入数据库（不包括仍在通道中的条目）
func (bw *BatchWriter) ForceFlush() {
	bw.bufMu.Lock()
	defer bw.bufMu.Unlock()
	bw.flushLocked()
}

// processEntries 从通道接收条目；通道关闭后写完剩余缓冲区再退出
func (bw *BatchWriter) processEntries() {
	defer bw.wg.Done()

	for entry := range bw.entryChan {
		bw.bufMu.Lock()
		bw.buffer = append(bw.buffer, entry)
		if len(bw.buffer) >= bw.config.BatchSize {
			bw.flushLocked()
		}
		bw.bufMu.Unlock()
	}

	bw.ForceFlush()
}

func (bw *BatchWriter) flushLoop(ctx context.Context) {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bw.ForceFlush()
		}
	}
}

// flushLocked 必须在持有 bufMu 时调用；失败的批次计入 Failed 后丢弃
func (bw *BatchWriter) flushLocked() {
	if len(bw.buffer) == 0 {
		return
	}

	startTime := time.Now()
	count := len(bw.buffer)
	bw.flushes.Add(1)

	if err := bw.repo.SaveBatch(bw.buffer); err != nil {
		bw.failed.Add(int64(count))
		bw.log.Error("批量写入失败", zap.Int("count", count), zap.Error(err))
	} else {
		bw.persisted.Add(int64(count))
		bw.log.Debug("批量刷新完成",
			zap.Int("count", count),
			zap.Duration("duration", time.Since(startTime)),
		)
	}

	bw.buffer = bw.buffer[:0]
}

// GetBufferSize 当前缓冲区中的条目数
func (bw *BatchWriter) GetBufferSize() int {
	bw.bufMu.Lock()
	defer bw.bufMu.Unlock()
	return len(bw.buffer)
}

// IsStarted 是否正在运行
func (bw *BatchWriter) IsStarted() bool {
	bw.mu.RLock()
	defer bw.mu.RUnlock()
	return bw.started
}

/**
 * GetStats 获取统计信息快照
 *
 * Returns: BatchWriterStats - 统计信息
 */
func (bw *BatchWriter) GetStats() BatchWriterStats {
	return BatchWriterStats{
		Accepted:  bw.accepted.Load(),
		Dropped:   bw.dropped.Load(),
		Persisted: bw.persisted.Load(),
		Failed:    bw.failed.Load(),
		Flushes:   bw.flushes.Load(),
	}
}
