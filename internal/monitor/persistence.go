package monitor

import (
	"fmt"
	"time"

	"github.com/chenyang-zz/opwatch/internal/infrastructure/storage"
	"github.com/chenyang-zz/opwatch/pkg/events"
	"github.com/chenyang-zz/opwatch/pkg/logger"
	"go.uber.org/zap"
)

/**
 * PersistenceConfig 持久化配置
 */
type PersistenceConfig struct {
	// RetryOnError 写入器拒绝时是否重试
	RetryOnError bool

	// MaxRetries 最大重试次数
	MaxRetries int

	// RetryBackoff 首次重试等待时间，之后指数增长
	RetryBackoff time.Duration
}

/**
 * DefaultPersistenceConfig 默认持久化配置
 */
func DefaultPersistenceConfig() PersistenceConfig {
	return PersistenceConfig{
		RetryOnError: true,
		MaxRetries:   3,
		RetryBackoff: time.Second,
	}
}

/**
 * Persistence 动作日志持久化
 *
 * 作为事件总线拦截器，把 action 事件写入批量写入器。
 * 序号在拦截时分配，重试不会改变动作的顺序。
 */
type Persistence struct {
	writer  *storage.BatchWriter
	session *storage.Session
	config  PersistenceConfig
	log     *zap.Logger
}

/**
 * NewPersistence 创建动作日志持久化
 *
 * Parameters:
 *   - writer: 批量写入器（需已启动）
 *   - session: 记录会话
 *   - config: 持久化配置
 *
 * Returns: *Persistence - 持久化实例
 */
func NewPersistence(writer *storage.BatchWriter, session *storage.Session, config PersistenceConfig) *Persistence {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}
	return &Persistence{
		writer:  writer,
		session: session,
		config:  config,
		log:     logger.GetLogger().Named("persistence"),
	}
}

/**
 * Interceptor 返回事件总线拦截器
 *
 * Returns: events.Middleware - 通过 EventBus.Intercept 注册
 */
func (p *Persistence) Interceptor() events.Middleware {
	p.log.Info("创建动作日志拦截器",
		zap.String("session_id", p.session.ID),
		zap.Bool("retry_on_error", p.config.RetryOnError),
	)

	return func(next events.EventHandler) events.EventHandler {
		return func(event events.Event) error {
			if event.Type != events.EventTypeAction {
				return next(event)
			}
			// 其他会话的动作不写入本会话
			if event.Context != nil && event.Context.SessionID != p.session.ID {
				return next(event)
			}

			action, ok := ActionOf(event)
			if !ok {
				p.log.Warn("action 事件缺少动作数据", zap.String("event_id", event.ID))
				return next(event)
			}

			entry := p.session.Entry(action)
			if !p.persist(entry) && p.config.RetryOnError {
				p.log.Warn("动作写入失败，准备重试",
					zap.String("event_id", event.ID),
					zap.Int64("seq", entry.Seq))
				go p.retryPersist(entry)
			}

			return next(event)
		}
	}
}

// persist 写入单个条目
func (p *Persistence) persist(entry storage.JournalEntry) bool {
	if p.writer == nil {
		p.log.Error("批量写入器未初始化")
		return false
	}
	return p.writer.Write(entry)
}

// retryPersist 指数退避重试
func (p *Persistence) retryPersist(entry storage.JournalEntry) {
	if p.writer == nil {
		return
	}
	for i := 0; i < p.config.MaxRetries; i++ {
		time.Sleep(p.config.RetryBackoff << uint(i))

		if !p.writer.IsStarted() {
			break
		}
		if p.persist(entry) {
			p.log.Info("动作重试写入成功",
				zap.Int64("seq", entry.Seq),
				zap.Int("attempt", i+1))
			return
		}
	}

	p.log.Error("动作重试写入失败",
		zap.Int64("seq", entry.Seq),
		zap.Int("max_retries", p.config.MaxRetries))
}

// Session 当前记录会话
func (p *Persistence) Session() *storage.Session {
	return p.session
}

/**
 * Stop 停止写入器，确保缓冲区数据已落盘
 */
func (p *Persistence) Stop() error {
	if p.writer == nil {
		return fmt.Errorf("批量写入器未初始化")
	}
	p.log.Info("正在停止动作日志...")
	p.writer.Stop()
	p.log.Info("动作日志已停止", zap.Int64("recorded", p.session.Count()))
	return nil
}

// GetStats 批量写入器统计信息
func (p *Persistence) GetStats() storage.BatchWriterStats {
	if p.writer == nil {
		return storage.BatchWriterStats{}
	}
	return p.writer.GetStats()
}
