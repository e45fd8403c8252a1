/**
 * Package metrics 提供 Prometheus 指标
 *
 * 记录操作结果、操作时长、动作数量和通知数量
 */

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DefaultNamespace 默认指标命名空间
const DefaultNamespace = "opwatch"

/**
 * Collectors 指标集合
 *
 * 实现分析器的归档观察者接口
 */
type Collectors struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration prometheus.Histogram
	actionsTotal      *prometheus.CounterVec
	noticesTotal      *prometheus.CounterVec
	patternsLoaded    prometheus.Gauge
	patternsVersion   prometheus.Gauge
	activeRuns        prometheus.Gauge
}

/**
 * New 创建指标集合
 *
 * Parameters:
 *   - namespace: 指标命名空间，为空时使用 opwatch
 *
 * Returns: *Collectors - 指标集合
 */
func New(namespace string) *Collectors {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Collectors{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of archived operations, partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		operationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of completed operations in seconds.",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
		),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of parsed UI actions, partitioned by event type.",
			},
			[]string{"event_type"},
		),
		noticesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notices_total",
				Help:      "Total number of emitted notices, partitioned by kind.",
			},
			[]string{"kind"},
		),
		patternsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "patterns_loaded",
				Help:      "Number of patterns in the current snapshot.",
			},
		),
		patternsVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "patterns_version",
				Help:      "Version of the current pattern snapshot.",
			},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Number of monitor engines currently reading input.",
			},
		),
	}
}

/**
 * Register 把指标注册到 registerer
 *
 * 已注册的指标会被跳过
 *
 * Parameters:
 *   - reg: Prometheus registerer
 *
 * Returns: error - 注册错误
 */
func (c *Collectors) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.operationsTotal,
		c.operationDuration,
		c.actionsTotal,
		c.noticesTotal,
		c.patternsLoaded,
		c.patternsVersion,
		c.activeRuns,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// OnFinalize 记录归档的操作
func (c *Collectors) OnFinalize(op *models.Operation) {
	if op == nil {
		return
	}
	c.operationsTotal.WithLabelValues(op.Outcome.String()).Inc()
	if op.Outcome == models.OutcomeCompleted {
		c.operationDuration.Observe(op.Duration().Seconds())
	}
}

// ObserveAction 记录一个解析出的动作
func (c *Collectors) ObserveAction(ev *models.ActionEvent) {
	if ev == nil {
		return
	}
	c.actionsTotal.WithLabelValues(string(ev.EventType)).Inc()
}

// ObserveNotice 记录一条通知
func (c *Collectors) ObserveNotice(n models.Notice) {
	c.noticesTotal.WithLabelValues(string(n.Kind)).Inc()
}

// ObserveStatus 根据引擎的 started / stopped 状态更新运行数
func (c *Collectors) ObserveStatus(status string) {
	switch status {
	case "started":
		c.activeRuns.Inc()
	case "stopped":
		c.activeRuns.Dec()
	}
}

// ObservePatterns 记录当前模式快照
func (c *Collectors) ObservePatterns(set *models.PatternSet) {
	c.patternsLoaded.Set(float64(set.Len()))
	c.patternsVersion.Set(float64(set.Version()))
}

/**
 * Serve 在 addr 上暴露 /metrics，阻塞直到 ctx 取消
 *
 * Parameters:
 *   - ctx: 上下文
 *   - addr: 监听地址
 *   - gatherer: 指标来源
 *
 * Returns: error - 监听错误；ctx 取消时返回 nil
 */
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("指标服务已启动", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
