/**
 * Package app 组装 opwatch 的各个组件
 *
 * App 层职责：
 * - 加载配置并初始化日志
 * - 创建模式库、事件总线、指标和动作日志
 * - 为每次监控或回放创建新的分析器和监控引擎
 * - 管理后台任务（模式热加载、指标服务）的生命周期
 */

package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chenyang-zz/opwatch/internal/domain/analyzer"
	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/internal/infrastructure/config"
	"github.com/chenyang-zz/opwatch/internal/infrastructure/metrics"
	"github.com/chenyang-zz/opwatch/internal/infrastructure/patterns"
	"github.com/chenyang-zz/opwatch/internal/infrastructure/storage"
	"github.com/chenyang-zz/opwatch/internal/monitor"
	"github.com/chenyang-zz/opwatch/internal/services"
	"github.com/chenyang-zz/opwatch/pkg/events"
	"github.com/chenyang-zz/opwatch/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrJournalDisabled 未启用动作日志
var ErrJournalDisabled = errors.New("未启用动作日志")

// ErrAlreadyRecording 同一时间只能记录一个会话
var ErrAlreadyRecording = errors.New("已有会话正在记录")

/**
 * Options 命令行覆盖项，非空时覆盖配置文件
 */
type Options struct {
	// ConfigPath 配置文件路径，为空时使用默认路径
	ConfigPath string

	// PatternsPath 模式文件路径
	PatternsPath string

	// JournalPath 动作日志数据库路径，非空时启用动作日志
	JournalPath string

	// Verbose 输出调试日志
	Verbose bool
}

/**
 * RunOptions 单次监控的选项
 */
type RunOptions struct {
	// Record 把动作记录到新的日志会话
	Record bool

	// Source 记录会话的来源描述
	Source string
}

/**
 * RunResult 单次监控的结果
 */
type RunResult struct {
	// Stats 引擎统计
	Stats monitor.EngineStats

	// Operations 已归档的操作
	Operations []*models.Operation

	// SessionID 记录的会话 ID，未记录时为空
	SessionID string

	// Journal 记录写入统计
	Journal storage.BatchWriterStats
}

/**
 * App 应用主结构体
 *
 * 包含了应用所需的所有服务和配置
 */
type App struct {
	// config 应用配置
	config *config.Config

	// eventBus 应用内部的事件传递
	eventBus *events.EventBus

	// store 模式库
	store *patterns.Store

	// patternSvc 模式库编辑服务
	patternSvc *services.PatternService

	// metrics 指标收集器，未启用时为 nil
	metrics  *metrics.Collectors
	registry *prometheus.Registry

	// 动作日志，未启用时为 nil
	db         *sql.DB
	repo       *storage.SQLiteActionRepository
	journalSvc *services.JournalService

	mu        sync.Mutex
	recording bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

/**
 * New 创建 App 实例
 *
 * Parameters:
 *   - opts: 命令行覆盖项
 *
 * Returns: *App - 初始化好的实例, error - 配置或初始化错误
 */
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if opts.PatternsPath != "" {
		cfg.Patterns.Path = opts.PatternsPath
	}
	if opts.JournalPath != "" {
		cfg.Storage.SQLite.Enabled = true
		cfg.Storage.SQLite.Path = opts.JournalPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}

	if err := logger.Init(cfg.Logging.LoggerOptions(opts.Verbose || cfg.Application.Debug)); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	a := &App{config: cfg}
	if err := a.init(); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	cfg := a.config

	store, err := patterns.Open(cfg.Patterns.Path, patterns.WithAutoSave(cfg.Patterns.AutoSave))
	if err != nil {
		return fmt.Errorf("加载模式库失败: %w", err)
	}
	a.store = store

	var busOpts []events.Option
	if cfg.Monitor.EventBufferSize > 0 {
		busOpts = append(busOpts, events.WithAsyncBufferSize(cfg.Monitor.EventBufferSize))
	}
	a.eventBus = events.NewEventBus(busOpts...)
	a.eventBus.Use(events.RecoveryMiddleware())
	a.eventBus.Use(events.LoggingMiddleware(func(e events.Event) {
		logger.Debug("交付事件", zap.String("event_type", string(e.Type)), zap.String("event_id", e.ID))
	}))
	a.patternSvc = services.NewPatternService(store, a.eventBus)

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Namespace)
		a.registry = prometheus.NewRegistry()
		if err := a.metrics.Register(a.registry); err != nil {
			return fmt.Errorf("注册指标失败: %w", err)
		}
		store.OnChange(a.metrics.ObservePatterns)
		a.metrics.ObservePatterns(store.Snapshot())
		monitor.SubscribeRecorder(a.eventBus, a.metrics)
	}

	if cfg.Storage.SQLite.Enabled {
		sqliteCfg := cfg.Storage.SQLite
		lifetime, _ := config.ParseDuration(sqliteCfg.ConnMaxLifetime, 0)
		db, err := storage.OpenJournal(storage.SQLiteConfig{
			Path:            sqliteCfg.Path,
			MaxOpenConns:    sqliteCfg.MaxOpenConns,
			MaxIdleConns:    sqliteCfg.MaxIdleConns,
			ConnMaxLifetime: lifetime,
		})
		if err != nil {
			return fmt.Errorf("打开动作日志失败: %w", err)
		}
		a.db = db
		a.repo = storage.NewSQLiteActionRepository(db)
		a.journalSvc = services.NewJournalService(a.repo)
	}

	logger.Info("应用已初始化",
		zap.String("patterns", cfg.Patterns.Path),
		zap.Int("pattern_count", store.Snapshot().Len()),
		zap.Bool("journal", a.repo != nil),
		zap.Bool("metrics", a.metrics != nil),
	)
	return nil
}

/**
 * Start 启动后台任务
 *
 * 配置开启时监听模式文件并热加载，配置了监听地址时暴露指标。
 * 任务在 ctx 取消或 Shutdown 时结束
 *
 * Parameters:
 *   - ctx: 上下文
 */
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)

	if a.config.Patterns.Watch && a.store.Path() != "" {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.store.Watch(ctx, patterns.DefaultWatchDebounce); err != nil {
				logger.Warn("模式文件监听已停止", zap.Error(err))
			}
		}()
	}

	if a.registry != nil && a.config.Metrics.Listen != "" {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := metrics.Serve(ctx, a.config.Metrics.Listen, a.registry); err != nil {
				logger.Error("指标服务异常退出", zap.Error(err))
			}
		}()
	}
}

/**
 * Run 用新的分析器处理输入源直到输入结束或 ctx 取消
 *
 * 分析器从模式库取快照，所以运行期间的模式编辑和热加载在下一个动作生效。
 * 通知作为 operation 事件发布到 EventBus，记录时事件上下文带有会话 ID
 *
 * Parameters:
 *   - ctx: 上下文
 *   - src: 输入源
 *   - opts: 单次运行选项
 *
 * Returns: RunResult - 运行结果, error - 输入源或动作日志错误
 */
func (a *App) Run(ctx context.Context, src monitor.Source, opts RunOptions) (RunResult, error) {
	analyzerOpts := []analyzer.Option{
		analyzer.WithMaxUnrelatedActions(a.config.Analyzer.MaxUnrelatedActions),
		analyzer.WithRecentCapacity(a.config.Analyzer.RecentCapacity),
		analyzer.WithDefaultTimeout(a.config.Analyzer.Timeout()),
	}
	engineOpts := []monitor.EngineOption{
		monitor.WithEventBus(a.eventBus),
		monitor.WithLineBuffer(a.config.Monitor.EventBufferSize),
	}
	if a.metrics != nil {
		analyzerOpts = append(analyzerOpts, analyzer.WithObserver(a.metrics))
	}

	var persistence *monitor.Persistence
	var detach func()
	if opts.Record {
		p, remove, err := a.startRecording(opts.Source)
		if err != nil {
			return RunResult{}, err
		}
		persistence, detach = p, remove
		engineOpts = append(engineOpts, monitor.WithSessionID(p.Session().ID))
	}

	engine := monitor.NewEngine(analyzer.New(a.store, analyzerOpts...), engineOpts...)
	runErr := engine.Run(ctx, src)

	result := RunResult{
		Stats:      engine.Stats(),
		Operations: engine.CompletedOperations(),
	}
	if persistence != nil {
		if err := persistence.Stop(); err != nil {
			runErr = errors.Join(runErr, err)
		}
		detach()
		result.SessionID = persistence.Session().ID
		result.Journal = persistence.GetStats()

		a.mu.Lock()
		a.recording = false
		a.mu.Unlock()
	}
	return result, runErr
}

// startRecording 创建记录会话并在事件总线上注册动作日志拦截器，返回移除拦截器的函数
func (a *App) startRecording(source string) (*monitor.Persistence, func(), error) {
	if a.repo == nil {
		return nil, nil, ErrJournalDisabled
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recording {
		return nil, nil, ErrAlreadyRecording
	}

	session := storage.NewSession(source)
	if err := a.repo.CreateSession(session); err != nil {
		return nil, nil, err
	}

	batch := a.config.Storage.SQLite.Batch
	flush, _ := config.ParseDuration(batch.FlushInterval, 0)
	writer := storage.NewBatchWriter(a.repo, storage.BatchWriterConfig{
		BatchSize:     batch.Size,
		FlushInterval: flush,
		EventBuffer:   batch.Buffer,
	})
	writer.Start()

	p := monitor.NewPersistence(writer, session, monitor.PersistenceConfig{
		RetryOnError: true,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
	})
	remove := a.eventBus.Intercept(p.Interceptor())
	a.recording = true

	logger.Info("开始记录动作日志", zap.String("session_id", session.ID), zap.String("source", source))
	return p, remove, nil
}

/**
 * Replay 把日志会话回放给新的分析器
 *
 * Parameters:
 *   - ctx: 上下文
 *   - idOrPrefix: 会话 ID 或唯一前缀
 *
 * Returns: RunResult - 回放结果, error - 会话不存在或读取失败
 */
func (a *App) Replay(ctx context.Context, idOrPrefix string) (RunResult, error) {
	journal, err := a.Journal()
	if err != nil {
		return RunResult{}, err
	}
	id, err := journal.ResolveSession(idOrPrefix)
	if err != nil {
		return RunResult{}, err
	}
	result, err := a.Run(ctx, monitor.NewJournalSource(a.repo, id), RunOptions{})
	result.SessionID = id
	return result, err
}

// Config 当前配置
func (a *App) Config() *config.Config {
	return a.config
}

// EventBus 应用事件总线
func (a *App) EventBus() *events.EventBus {
	return a.eventBus
}

// Patterns 模式库编辑服务
func (a *App) Patterns() *services.PatternService {
	return a.patternSvc
}

// Journal 会话管理服务，未启用动作日志时返回 ErrJournalDisabled
func (a *App) Journal() (*services.JournalService, error) {
	if a.journalSvc == nil {
		return nil, ErrJournalDisabled
	}
	return a.journalSvc, nil
}

// Gatherer 指标来源，未启用指标时为 nil
func (a *App) Gatherer() prometheus.Gatherer {
	if a.registry == nil {
		return nil
	}
	return a.registry
}

/**
 * Shutdown 停止后台任务并释放资源
 */
func (a *App) Shutdown() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	if a.eventBus != nil {
		if err := a.eventBus.Stop(2 * time.Second); err != nil {
			logger.Debug("停止事件总线", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn("关闭动作日志失败", zap.Error(err))
		}
		a.db = nil
	}
	_ = logger.Sync()
}
