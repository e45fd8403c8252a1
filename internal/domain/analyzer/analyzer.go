/**
 * Package analyzer 业务操作识别状态机
 *
 * OperationAnalyzer 每次消费一个动作事件，维护至多一个进行中的操作，
 * 根据模式库中的开始、中间、完成触发器推进状态，并产生单行通知。
 *
 * 分析器不是并发安全的，调用方必须串行调用（monitor.Engine 是唯一的写入者）。
 */

package analyzer

import (
	"time"

	"github.com/chenyang-zz/opwatch/internal/domain/matcher"
	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/internal/domain/parser"
	"github.com/chenyang-zz/opwatch/pkg/buffers"
	"github.com/chenyang-zz/opwatch/pkg/logger"
	"go.uber.org/zap"
)

const (
	// DefaultMaxUnrelatedActions 允许的连续无关动作数，超过即取消操作
	DefaultMaxUnrelatedActions = 5

	// DefaultRecentCapacity 最近动作缓冲区容量
	DefaultRecentCapacity = 50

	// DefaultTimeout 模式未声明超时或模式已被删除时使用的超时
	DefaultTimeout = models.DefaultPatternTimeout * time.Second
)

/**
 * PatternProvider 模式库快照来源
 *
 * 每个分析步骤只调用一次 Snapshot，步骤内看到的模式不会变化
 */
type PatternProvider interface {
	Snapshot() *models.PatternSet
}

// StaticPatterns 固定不变的模式库
type StaticPatterns struct {
	Set *models.PatternSet
}

// Snapshot 实现 PatternProvider
func (s StaticPatterns) Snapshot() *models.PatternSet {
	return s.Set
}

/**
 * Observer 操作归档观察者
 *
 * 每个被归档的操作（完成、超时、取消、被替换）都会通知一次，参数是副本
 */
type Observer interface {
	OnFinalize(op *models.Operation)
}

// ObserverFunc 函数形式的观察者
type ObserverFunc func(op *models.Operation)

// OnFinalize 实现 Observer
func (f ObserverFunc) OnFinalize(op *models.Operation) {
	f(op)
}

/**
 * OperationAnalyzer 操作识别状态机
 */
type OperationAnalyzer struct {
	provider PatternProvider
	matcher  *matcher.Matcher
	parser   *parser.Parser

	maxUnrelated   int
	defaultTimeout time.Duration
	recentCapacity int

	// recent 最近接受的动作，仅用于诊断
	recent *buffers.RingBuffer[models.ActionEvent]

	// current 进行中的操作（至多一个）
	current *models.Operation

	// archive 已归档的操作
	archive []*models.Operation

	observers []Observer
	log       *zap.Logger
}

/**
 * Option 分析器配置选项
 */
type Option func(*OperationAnalyzer)

// WithMaxUnrelatedActions 设置允许的连续无关动作数（负数忽略）
func WithMaxUnrelatedActions(n int) Option {
	return func(a *OperationAnalyzer) {
		if n >= 0 {
			a.maxUnrelated = n
		}
	}
}

// WithRecentCapacity 设置最近动作缓冲区容量
func WithRecentCapacity(n int) Option {
	return func(a *OperationAnalyzer) {
		if n > 0 {
			a.recentCapacity = n
		}
	}
}

// WithDefaultTimeout 设置默认超时
func WithDefaultTimeout(d time.Duration) Option {
	return func(a *OperationAnalyzer) {
		if d > 0 {
			a.defaultTimeout = d
		}
	}
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(a *OperationAnalyzer) {
		if l != nil {
			a.log = l
		}
	}
}

// WithObserver 添加归档观察者
func WithObserver(o Observer) Option {
	return func(a *OperationAnalyzer) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

// WithMatcher 设置触发器匹配器
func WithMatcher(m *matcher.Matcher) Option {
	return func(a *OperationAnalyzer) {
		if m != nil {
			a.matcher = m
		}
	}
}

/**
 * New 创建分析器
 *
 * Parameters:
 *   - provider: 模式库快照来源，nil 表示空模式库
 *   - opts: 配置选项
 *
 * Returns: *OperationAnalyzer - 分析器实例
 */
func New(provider PatternProvider, opts ...Option) *OperationAnalyzer {
	if provider == nil {
		provider = StaticPatterns{}
	}
	a := &OperationAnalyzer{
		provider:       provider,
		matcher:        matcher.Default(),
		maxUnrelated:   DefaultMaxUnrelatedActions,
		defaultTimeout: DefaultTimeout,
		recentCapacity: DefaultRecentCapacity,
		log:            logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.Named("analyzer")
	a.parser = parser.New(a.log)
	a.recent = buffers.NewRingBuffer[models.ActionEvent](a.recentCapacity)
	return a
}

/**
 * AnalyzeLine 解析一行日志并执行一个分析步骤
 *
 * 不是动作的行不改变任何状态
 *
 * Parameters:
 *   - line: 原始日志行
 *
 * Returns: []models.Notice - 本步骤产生的通知
 */
func (a *OperationAnalyzer) AnalyzeLine(line string) []models.Notice {
	ev, ok := a.parser.Parse(line)
	if !ok {
		return nil
	}
	return a.Analyze(ev)
}

// CurrentOperation 返回进行中操作的副本，没有时返回 nil
func (a *OperationAnalyzer) CurrentOperation() *models.Operation {
	return a.current.Clone()
}

// CompletedOperations 按归档顺序返回所有已归档操作的副本
func (a *OperationAnalyzer) CompletedOperations() []*models.Operation {
	out := make([]*models.Operation, 0, len(a.archive))
	for _, op := range a.archive {
		out = append(out, op.Clone())
	}
	return out
}

// RecentActions 按从旧到新的顺序返回最近接受的动作
func (a *OperationAnalyzer) RecentActions() []models.ActionEvent {
	return a.recent.Snapshot()
}

// Statistics 归档操作统计
func (a *OperationAnalyzer) Statistics() models.Statistics {
	return models.ComputeStatistics(a.archive)
}

// MaxUnrelatedActions 允许的连续无关动作数
func (a *OperationAnalyzer) MaxUnrelatedActions() int {
	return a.maxUnrelated
}

// Reset 丢弃进行中的操作、归档和最近动作
func (a *OperationAnalyzer) Reset() {
	a.log.Debug("重置分析器",
		zap.Int("archived", len(a.archive)),
		zap.Int("recent", a.recent.Len()),
		zap.Int("recent_capacity", a.recent.Cap()),
		zap.Int64("actions_seen", a.recent.TotalAdded()),
	)
	a.current = nil
	a.archive = nil
	a.recent.Clear()
}
