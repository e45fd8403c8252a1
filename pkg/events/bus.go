package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenyang-zz/opwatch/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

/**
 * EventHandler 事件处理函数类型
 *
 * Parameters:
 *   - event: 事件对象
 *
 * Returns:
 *   - error: 处理过程中的错误
 */
type EventHandler func(event Event) error

/**
 * EventFilter 事件过滤器函数类型
 *
 * 返回 true 表示事件应该被处理，false 表示跳过
 */
type EventFilter func(event Event) bool

/**
 * Middleware 中间件类型
 *
 * 中间件包装事件处理函数，例如记录日志或恢复 panic
 */
type Middleware func(EventHandler) EventHandler

/**
 * Subscriber 订阅者信息
 */
type Subscriber struct {
	// ID 订阅者唯一标识
	ID string

	// Handler 事件处理函数
	Handler EventHandler

	// Filter 事件过滤器（可选）
	Filter EventFilter

	// Sync 是否在发布方 goroutine 中同步交付
	Sync bool

	// Chan 订阅者专用通道（异步交付），同步订阅者为 nil
	Chan chan Event

	// mu 保护 Chan 的发送和关闭
	mu sync.RWMutex

	// closed 是否已取消订阅
	closed bool
}

// interceptor 已注册的发布拦截器
type interceptor struct {
	id uint64
	mw Middleware
}

/**
 * EventBus 事件总线
 *
 * 订阅者分为两类：
 * - 异步订阅者各自拥有缓冲通道和处理 goroutine，缓冲区满时丢弃事件
 * - 同步订阅者在 Publish 中按订阅顺序直接调用，不丢事件，顺序与发布顺序一致
 */
type EventBus struct {
	// subscribers 订阅者映射：事件类型 -> 订阅者列表
	subscribers map[string][]*Subscriber

	// mutex 保护 subscribers、middleware 和 interceptors
	mutex sync.RWMutex

	// wg 等待异步处理 goroutine 退出
	wg sync.WaitGroup

	// stopChan 停止信号通道
	stopChan chan struct{}

	// middleware 订阅者处理函数的中间件链
	middleware []Middleware

	// interceptors 发布时执行一次的拦截器链
	interceptors []interceptor

	// nextInterceptorID 拦截器编号
	nextInterceptorID uint64

	// stopped 原子标志，标记总线是否已停止
	stopped atomic.Bool

	// asyncEnabled 是否启用异步交付，禁用时所有订阅都是同步的
	asyncEnabled bool

	// asyncBufferSize 异步订阅者的通道容量
	asyncBufferSize int
}

/**
 * NewEventBus 创建新的事件总线
 *
 * Parameters:
 *   - opts: 配置选项（可选）
 *
 * Returns:
 *   - *EventBus: 新创建的事件总线
 */
func NewEventBus(opts ...Option) *EventBus {
	bus := &EventBus{
		subscribers:     make(map[string][]*Subscriber),
		stopChan:        make(chan struct{}),
		asyncEnabled:    true,
		asyncBufferSize: 1000,
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Option 配置选项类型
type Option func(*EventBus)

// WithAsyncBufferSize 设置异步订阅者的通道容量
func WithAsyncBufferSize(size int) Option {
	return func(bus *EventBus) {
		if size > 0 {
			bus.asyncBufferSize = size
		}
	}
}

// WithAsyncDisabled 禁用异步交付
func WithAsyncDisabled() Option {
	return func(bus *EventBus) {
		bus.asyncEnabled = false
	}
}

/**
 * Subscribe 异步订阅事件
 *
 * Parameters:
 *   - eventType: 事件类型，使用 "*" 订阅所有事件
 *   - handler: 事件处理函数
 *
 * Returns:
 *   - string: 订阅者 ID，用于取消订阅
 */
func (bus *EventBus) Subscribe(eventType string, handler EventHandler) string {
	return bus.SubscribeWithFilter(eventType, handler, nil)
}

/**
 * SubscribeWithFilter 带过滤器异步订阅事件
 *
 * 总线禁用了异步交付时退化为 SubscribeSync
 *
 * Parameters:
 *   - eventType: 事件类型
 *   - handler: 事件处理函数
 *   - filter: 事件过滤器（可选）
 *
 * Returns:
 *   - string: 订阅者 ID
 */
func (bus *EventBus) SubscribeWithFilter(eventType string, handler EventHandler, filter EventFilter) string {
	if !bus.asyncEnabled {
		return bus.SubscribeSync(eventType, handler, filter)
	}

	subscriber := &Subscriber{
		ID:      generateSubscriberID(),
		Handler: handler,
		Filter:  filter,
		Chan:    make(chan Event, bus.asyncBufferSize),
	}
	bus.add(eventType, subscriber)

	bus.wg.Add(1)
	go bus.processSubscriber(subscriber)
	return subscriber.ID
}

/**
 * SubscribeSync 同步订阅事件
 *
 * 处理函数在 Publish 的调用方 goroutine 中执行，Publish 返回时已处理完毕。
 * 处理函数不能再调用发布方持有锁的方法
 *
 * Parameters:
 *   - eventType: 事件类型，使用 "*" 订阅所有事件
 *   - handler: 事件处理函数
 *   - filter: 事件过滤器（可选）
 *
 * Returns:
 *   - string: 订阅者 ID
 */
func (bus *EventBus) SubscribeSync(eventType string, handler EventHandler, filter EventFilter) string {
	subscriber := &Subscriber{
		ID:      generateSubscriberID(),
		Handler: handler,
		Filter:  filter,
		Sync:    true,
	}
	bus.add(eventType, subscriber)
	return subscriber.ID
}

func (bus *EventBus) add(eventType string, subscriber *Subscriber) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	bus.subscribers[eventType] = append(bus.subscribers[eventType], subscriber)

	logger.Debug("订阅事件",
		zap.String("event_type", eventType),
		zap.String("subscriber_id", subscriber.ID),
		zap.Bool("sync", subscriber.Sync),
	)
}

/**
 * Unsubscribe 取消订阅
 *
 * 异步订阅者的通道被关闭，已缓冲的事件仍会处理完
 *
 * Parameters:
 *   - subscriberID: 订阅者 ID
 */
func (bus *EventBus) Unsubscribe(subscriberID string) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()

	for eventType, subscribers := range bus.subscribers {
		for i, sub := range subscribers {
			if sub.ID != subscriberID {
				continue
			}
			// 复制一份，Publish 可能仍持有旧切片
			rest := make([]*Subscriber, 0, len(subscribers)-1)
			rest = append(rest, subscribers[:i]...)
			bus.subscribers[eventType] = append(rest, subscribers[i+1:]...)

			sub.mu.Lock()
			sub.closed = true
			if sub.Chan != nil {
				close(sub.Chan)
			}
			sub.mu.Unlock()

			logger.Debug("取消订阅",
				zap.String("event_type", eventType),
				zap.String("subscriber_id", subscriberID),
			)
			return
		}
	}

	logger.Debug("订阅者不存在，无法取消订阅", zap.String("subscriber_id", subscriberID))
}

/**
 * Publish 发布事件
 *
 * 先执行拦截器链，再交付给订阅者：同步订阅者直接调用，
 * 异步订阅者写入各自的通道
 *
 * Parameters:
 *   - eventType: 事件类型
 *   - event: 事件对象
 *
 * Returns:
 *   - error: 总线已停止时返回错误
 */
func (bus *EventBus) Publish(eventType string, event Event) error {
	if bus.stopped.Load() {
		logger.Warn("事件总线已停止，无法发布事件",
			zap.String("event_type", eventType),
		)
		return fmt.Errorf("event bus is stopped")
	}

	bus.mutex.RLock()
	interceptors := make([]Middleware, len(bus.interceptors))
	for i, ic := range bus.interceptors {
		interceptors[i] = ic.mw
	}
	subscribers := bus.getSubscribers(eventType)
	bus.mutex.RUnlock()

	if len(interceptors) > 0 {
		intercept := chain(interceptors, func(Event) error { return nil })
		if err := intercept(event); err != nil {
			logger.Warn("事件拦截器返回错误",
				zap.String("event_type", eventType),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	}

	delivered := 0
	for _, subscriber := range subscribers {
		if subscriber.Filter != nil && !subscriber.Filter(event) {
			continue
		}
		if subscriber.Sync {
			subscriber.mu.RLock()
			closed := subscriber.closed
			subscriber.mu.RUnlock()
			if !closed {
				bus.deliver(subscriber, event)
				delivered++
			}
			continue
		}

		subscriber.mu.RLock()
		if !subscriber.closed {
			select {
			case subscriber.Chan <- event:
				delivered++
			default:
				logger.Warn("事件缓冲区满，丢弃事件",
					zap.String("subscriber_id", subscriber.ID),
					zap.String("event_type", eventType),
				)
			}
		}
		subscriber.mu.RUnlock()
	}

	logger.Debug("事件已发布",
		zap.String("event_type", eventType),
		zap.String("event_id", event.ID),
		zap.Int("subscriber_count", delivered),
	)
	return nil
}

/**
 * Use 添加订阅者中间件
 *
 * 中间件按添加顺序包装每个订阅者的处理函数，对之后交付的事件生效
 *
 * Parameters:
 *   - middleware: 中间件函数
 */
func (bus *EventBus) Use(middleware Middleware) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	bus.middleware = append(bus.middleware, middleware)
}

/**
 * Intercept 添加发布拦截器
 *
 * 拦截器在 Publish 的调用方 goroutine 中对每个事件执行一次，
 * 先于分发给订阅者，因此能看到严格的发布顺序
 *
 * Parameters:
 *   - mw: 拦截器
 *
 * Returns:
 *   - func(): 移除该拦截器，可重复调用
 */
func (bus *EventBus) Intercept(mw Middleware) func() {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()

	bus.nextInterceptorID++
	id := bus.nextInterceptorID
	bus.interceptors = append(bus.interceptors, interceptor{id: id, mw: mw})

	return func() {
		bus.mutex.Lock()
		defer bus.mutex.Unlock()
		for i, ic := range bus.interceptors {
			if ic.id == id {
				rest := make([]interceptor, 0, len(bus.interceptors)-1)
				rest = append(rest, bus.interceptors[:i]...)
				bus.interceptors = append(rest, bus.interceptors[i+1:]...)
				return
			}
		}
	}
}

// Interceptors 当前注册的拦截器数量
func (bus *EventBus) Interceptors() int {
	bus.mutex.RLock()
	defer bus.mutex.RUnlock()
	return len(bus.interceptors)
}

/**
 * Stop 优雅停止事件总线
 *
 * 通知所有异步处理 goroutine 退出并等待
 *
 * Parameters:
 *   - timeout: 超时时间
 *
 * Returns:
 *   - error: 超时时返回错误
 */
func (bus *EventBus) Stop(timeout time.Duration) error {
	if !bus.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(bus.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		bus.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for event bus to stop")
	}
}

// processSubscriber 异步订阅者的处理循环，通道关闭或总线停止时退出
func (bus *EventBus) processSubscriber(subscriber *Subscriber) {
	defer bus.wg.Done()

	for {
		select {
		case event, ok := <-subscriber.Chan:
			if !ok {
				logger.Debug("订阅者通道关闭", zap.String("subscriber_id", subscriber.ID))
				return
			}
			bus.deliver(subscriber, event)

		case <-bus.stopChan:
			logger.Debug("订阅者处理器停止", zap.String("subscriber_id", subscriber.ID))
			return
		}
	}
}

// deliver 经过中间件链调用处理函数，错误只记录
func (bus *EventBus) deliver(subscriber *Subscriber, event Event) {
	handler := bus.applyMiddleware(subscriber.Handler)
	if err := handler(event); err != nil {
		logger.Error("事件处理错误",
			zap.String("subscriber_id", subscriber.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}

/**
 * getSubscribers 获取事件类型的所有订阅者，包括通配符订阅者
 *
 * 调用方需持有读锁
 */
func (bus *EventBus) getSubscribers(eventType string) []*Subscriber {
	subscribers := make([]*Subscriber, 0, len(bus.subscribers[eventType])+len(bus.subscribers["*"]))
	subscribers = append(subscribers, bus.subscribers[eventType]...)
	if eventType != "*" {
		subscribers = append(subscribers, bus.subscribers["*"]...)
	}
	return subscribers
}

func (bus *EventBus) applyMiddleware(handler EventHandler) EventHandler {
	bus.mutex.RLock()
	defer bus.mutex.RUnlock()
	return chain(bus.middleware, handler)
}

// chain 按洋葱模型包装处理函数，先添加的在最外层
func chain(middleware []Middleware, handler EventHandler) EventHandler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}

func generateSubscriberID() string {
	return "sub-" + uuid.New().String()
}

/**
 * RecoveryMiddleware 恢复中间件
 *
 * 把处理函数中的 panic 转为错误
 */
func RecoveryMiddleware() Middleware {
	return func(next EventHandler) EventHandler {
		return func(event Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()
			return next(event)
		}
	}
}

/**
 * LoggingMiddleware 日志中间件
 *
 * 每次交付前调用 logFn，logFn 为 nil 时不做任何事
 *
 * Parameters:
 *   - logFn: 日志函数
 */
func LoggingMiddleware(logFn func(event Event)) Middleware {
	return func(next EventHandler) EventHandler {
		return func(event Event) error {
			if logFn != nil {
				logFn(event)
			}
			return next(event)
		}
	}
}
