package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/chenyang-zz/opwatch/internal/domain/analyzer"
	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/internal/domain/parser"
	"github.com/chenyang-zz/opwatch/pkg/events"
	"github.com/chenyang-zz/opwatch/pkg/logger"
	"go.uber.org/zap"
)

// DefaultLineBuffer 输入源与引擎之间的通道容量
const DefaultLineBuffer = 256

// ErrAlreadyRunning 引擎已在运行
var ErrAlreadyRunning = errors.New("监控引擎已在运行")

/**
 * EngineStats 引擎运行统计
 */
type EngineStats struct {
	// Lines 读取的行数
	Lines int64

	// Actions 解析出的动作数
	Actions int64

	// Notices 产生的通知数
	Notices int64

	// Current 进行中的操作副本
	Current *models.Operation

	// Operations 已归档操作统计
	Operations models.Statistics
}

/**
 * Engine 监控引擎
 *
 * 引擎是分析器唯一的写入者：所有行在同一把锁下按顺序解析、发布和分析，
 * 因此动作日志的顺序与分析顺序一致。
 * 同步订阅者在这把锁内被调用，不能再调用引擎的方法。
 */
type Engine struct {
	analyzer *analyzer.OperationAnalyzer
	parser   *parser.Parser
	bus      *events.EventBus

	sessionID  string
	lineBuffer int

	mu    sync.Mutex
	stats EngineStats

	running atomic.Bool
	log     *zap.Logger
}

// EngineOption 引擎配置选项
type EngineOption func(*Engine)

// WithEventBus 设置事件总线，nil 表示不发布事件
func WithEventBus(bus *events.EventBus) EngineOption {
	return func(e *Engine) { e.bus = bus }
}

// WithSessionID 设置写入事件上下文的会话 ID
func WithSessionID(id string) EngineOption {
	return func(e *Engine) { e.sessionID = id }
}

// WithLineBuffer 设置输入通道容量
func WithLineBuffer(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.lineBuffer = n
		}
	}
}

// WithEngineLogger 设置日志器
func WithEngineLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

/**
 * NewEngine 创建监控引擎
 *
 * Parameters:
 *   - a: 操作分析器
 *   - opts: 配置选项
 *
 * Returns: *Engine - 引擎实例
 */
func NewEngine(a *analyzer.OperationAnalyzer, opts ...EngineOption) *Engine {
	e := &Engine{
		analyzer:   a,
		lineBuffer: DefaultLineBuffer,
		log:        logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("engine")
	e.parser = parser.New(e.log)
	return e
}

/**
 * Run 从输入源读取行直到输入结束或 ctx 取消
 *
 * 同一时间只能有一个 Run 在执行
 *
 * Parameters:
 *   - ctx: 上下文
 *   - src: 输入源
 *
 * Returns: error - 输入源错误，或 ErrAlreadyRunning
 */
func (e *Engine) Run(ctx context.Context, src Source) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan Line, e.lineBuffer)
	errCh := make(chan error, 1)
	go func() {
		defer close(lines)
		errCh <- src.Run(ctx, lines)
	}()

	e.log.Info("监控引擎已启动", zap.String("source", src.Name()))
	e.publishStatus("started", src.Name())

	for line := range lines {
		e.Handle(line)
	}

	err := <-errCh
	stats := e.Stats()
	e.log.Info("监控引擎已停止",
		zap.String("source", src.Name()),
		zap.Int64("lines", stats.Lines),
		zap.Int64("actions", stats.Actions),
		zap.Int64("notices", stats.Notices),
		zap.Error(err),
	)
	e.publishStatus("stopped", src.Name())
	return err
}

// IsRunning 是否有 Run 正在执行
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Process 处理一行文本，返回产生的通知
func (e *Engine) Process(text string) []models.Notice {
	return e.Handle(Line{Text: text})
}

/**
 * Handle 处理一行输入
 *
 * 非动作行只计数；动作先作为 action 事件发布（拦截器据此写入动作日志），
 * 再交给分析器，产生的每条通知作为 operation 事件发布
 *
 * Parameters:
 *   - line: 输入行
 *
 * Returns: []models.Notice - 本行产生的通知
 */
func (e *Engine) Handle(line Line) []models.Notice {
	ev := line.Action
	if ev == nil {
		parsed, ok := e.parser.Parse(line.Text)
		if !ok {
			e.mu.Lock()
			e.stats.Lines++
			e.mu.Unlock()
			return nil
		}
		ev = parsed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.Lines++
	e.stats.Actions++

	e.publish(events.EventTypeAction, map[string]interface{}{events.DataKeyAction: *ev}, line)

	notices := e.analyzer.Analyze(ev)
	for _, n := range notices {
		e.stats.Notices++
		e.log.Debug("操作通知",
			zap.String("kind", string(n.Kind)),
			zap.String("pattern", n.PatternKey),
			zap.String("text", n.Text),
		)
		e.publish(events.EventTypeOperation, map[string]interface{}{events.DataKeyNotice: n}, line)
	}
	return notices
}

/**
 * Stats 获取引擎统计快照
 *
 * Returns: EngineStats - 统计信息
 */
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := e.stats
	stats.Current = e.analyzer.CurrentOperation()
	stats.Operations = e.analyzer.Statistics()
	return stats
}

// CompletedOperations 已归档操作的副本
func (e *Engine) CompletedOperations() []*models.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.analyzer.CompletedOperations()
}

// RecentActions 分析器最近接受的动作
func (e *Engine) RecentActions() []models.ActionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.analyzer.RecentActions()
}

// Reset 清空分析器状态和计数
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.analyzer.Reset()
	e.stats = EngineStats{}
}

func (e *Engine) publish(eventType events.EventType, data map[string]interface{}, line Line) {
	if e.bus == nil {
		return
	}
	event := events.NewEvent(eventType, data).WithContext(&events.EventContext{
		Source:    line.Source,
		SessionID: e.sessionID,
		Line:      line.Number,
	})
	if err := e.bus.Publish(string(eventType), *event); err != nil {
		e.log.Debug("发布事件失败", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

func (e *Engine) publishStatus(status, source string) {
	if e.bus == nil {
		return
	}
	event := events.NewEvent(events.EventTypeStatus, map[string]interface{}{
		events.DataKeyStatus:  status,
		events.DataKeyMessage: source,
	})
	if err := e.bus.Publish(string(events.EventTypeStatus), *event); err != nil {
		e.log.Debug("发布状态事件失败", zap.String("status", status), zap.Error(err))
	}
}
