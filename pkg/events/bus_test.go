package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/**
 * TestNewEventBus 测试创建事件总线
 */
func TestNewEventBus(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(5 * time.Second)

	assert.NotNil(t, bus)
	assert.False(t, bus.stopped.Load(), "Expected bus to be running")
}

func TestSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(5 * time.Second)

	var received atomic.Bool
	subscriberID := bus.Subscribe(string(EventTypeAction), func(event Event) error {
		received.Store(true)
		return nil
	})
	assert.NotEmpty(t, subscriberID)

	event := NewEvent(EventTypeAction, map[string]interface{}{DataKeyMessage: "hello"})
	require.NoError(t, bus.Publish(string(EventTypeAction), *event))

	assert.Eventually(t, received.Load, time.Second, 10*time.Millisecond)
}

func TestSubscribeWildcard(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(5 * time.Second)

	var count atomic.Int32
	bus.Subscribe("*", func(event Event) error {
		count.Add(1)
		return nil
	})

	for _, et := range []EventType{EventTypeAction, EventTypeOperation, EventTypePatterns} {
		require.NoError(t, bus.Publish(string(et), *NewEvent(et, nil)))
	}

	assert.Eventually(t, func() bool { return count.Load() == 3 }, time.Second, 10*time.Millisecond)
}

func TestSubscribeWithFilter(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(5 * time.Second)

	var received atomic.Int32
	filter := func(event Event) bool {
		val, ok := event.Data["value"].(int)
		return ok && val > 5
	}
	bus.SubscribeWithFilter("test", func(event Event) error {
		received.Add(1)
		return nil
	}, filter)

	for _, v := range []int{3, 7, 10} {
		require.NoError(t, bus.Publish("test", *NewEvent("test", map[string]interface{}{"value": v})))
	}

	assert.Eventually(t, func() bool { return received.Load() == 2 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), received.Load())
}

func TestSubscribeSync(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(5 * time.Second)

	var got []int
	id := bus.SubscribeSync("test", func(event Event) error {
		got = append(got, event.Data["value"].(int))
		return nil
	}, func(event Event) bool {
		return event.Data["value"].(int)%2 == 1
	})

	for v := 1; v <= 5; v++ {
		require.NoError(t, bus.Publish("test", *NewEvent("test", map[string]interface{}{"value": v})))
	}
	// Publish 返回时同步订阅者已处理完，顺序与发布顺序一致
	assert.Equal(t, []int{1, 3, 5}, got)

	bus.Unsubscribe(id)
	require.NoError(t, bus.Publish("test", *NewEvent("test", map[string]interface{}{"value": 7})))
	assert.Equal(t, []int{1, 3, 5}, got)
}

func TestSubscribeWithAsyncDisabled(t *testing.T) {
	bus := NewEventBus(WithAsyncDisabled())
	defer bus.Stop(5 * time.Second)

	var count int
	bus.Subscribe("test", func(Event) error {
		count++
		return nil
	})

	require.NoError(t, bus.Publish("test", *NewEvent("test", nil)))
	require.NoError(t, bus.Publish("test", *NewEvent("test", nil)))
	assert.Equal(t, 2, count, "禁用异步后订阅退化为同步")
}

func TestSyncSubscriberUnsubscribesItself(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(5 * time.Second)

	var count int
	var id string
	id = bus.SubscribeSync("test", func(Event) error {
		count++
		bus.Unsubscribe(id)
		return nil
	}, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish("test", *NewEvent("test", nil)))
	}
	assert.Equal(t, 1, count)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(5 * time.Second)

	var received atomic.Int32
	subscriberID := bus.Subscribe("test", func(event Event) error {
		received.Add(1)
		return nil
	})

	require.NoError(t, bus.Publish("test", *NewEvent("test", nil)))
	require.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, 10*time.Millisecond)

	bus.Unsubscribe(subscriberID)
	// 重复取消不应 panic
	bus.Unsubscribe(subscriberID)

	require.NoError(t, bus.Publish("test", *NewEvent("test", nil)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
}

func TestEventContext(t *testing.T) {
	event := NewEvent(EventTypeAction, map[string]interface{}{DataKeyAction: "FOCUS"})
	event.WithContext(&EventContext{Source: "/var/log/ui.log", SessionID: "s-1", Line: 42})

	require.NotNil(t, event.Context)
	assert.Equal(t, "/var/log/ui.log", event.Context.Source)
	assert.Equal(t, "s-1", event.Context.SessionID)
	assert.Equal(t, int64(42), event.Context.Line)
	assert.NotEmpty(t, event.ID)
	assert.NotEqual(t, event.ID, NewEvent(EventTypeAction, nil).ID)
}

func TestEventMetadataAndGet(t *testing.T) {
	event := &Event{Type: EventTypeStatus}

	event.WithMetadata("source", "tailer").WithMetadata("version", "1.0")
	assert.Len(t, event.Metadata, 2)
	assert.Equal(t, "tailer", event.Metadata["source"])

	_, ok := event.Get(DataKeyStatus)
	assert.False(t, ok, "Data 为空时读取失败")

	event.Data = map[string]interface{}{DataKeyStatus: "running"}
	v, ok := event.Get(DataKeyStatus)
	assert.True(t, ok)
	assert.Equal(t, "running", v)
}

func TestRecoveryMiddleware(t *testing.T) {
	bus := NewEventBus()
	bus.Use(RecoveryMiddleware())
	defer bus.Stop(5 * time.Second)

	var after atomic.Bool
	bus.Subscribe("test", func(event Event) error {
		if event.Data["panic"] == true {
			panic("test panic")
		}
		after.Store(true)
		return nil
	})

	require.NoError(t, bus.Publish("test", *NewEvent("test", map[string]interface{}{"panic": true})))
	require.NoError(t, bus.Publish("test", *NewEvent("test", map[string]interface{}{"panic": false})))

	// 处理器在 panic 后继续工作
	assert.Eventually(t, after.Load, time.Second, 10*time.Millisecond)
}

func TestRecoveryMiddlewareSync(t *testing.T) {
	bus := NewEventBus()
	bus.Use(RecoveryMiddleware())
	defer bus.Stop(5 * time.Second)

	var after int
	bus.SubscribeSync("test", func(event Event) error {
		if event.Data["panic"] == true {
			panic("test panic")
		}
		after++
		return nil
	}, nil)

	assert.NotPanics(t, func() {
		require.NoError(t, bus.Publish("test", *NewEvent("test", map[string]interface{}{"panic": true})))
	})
	require.NoError(t, bus.Publish("test", *NewEvent("test", map[string]interface{}{"panic": false})))
	assert.Equal(t, 1, after)
}

func TestLoggingMiddleware(t *testing.T) {
	bus := NewEventBus()
	var logged atomic.Int32
	bus.Use(LoggingMiddleware(func(Event) { logged.Add(1) }))
	bus.Use(LoggingMiddleware(nil))
	defer bus.Stop(5 * time.Second)

	bus.Subscribe("test", func(Event) error { return nil })
	bus.Subscribe("test", func(Event) error { return nil })

	require.NoError(t, bus.Publish("test", *NewEvent("test", nil)))

	// 每个订阅者各经过一次中间件
	assert.Eventually(t, func() bool { return logged.Load() == 2 }, time.Second, 10*time.Millisecond)
}

func TestInterceptRunsOncePerPublish(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(5 * time.Second)

	var mu sync.Mutex
	var seen []string
	bus.Intercept(func(next EventHandler) EventHandler {
		return func(event Event) error {
			mu.Lock()
			seen = append(seen, event.Data[DataKeyMessage].(string))
			mu.Unlock()
			return next(event)
		}
	})

	var delivered atomic.Int32
	for i := 0; i < 3; i++ {
		bus.Subscribe("test", func(Event) error {
			delivered.Add(1)
			return nil
		})
	}

	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish("test", *NewEvent("test", map[string]interface{}{DataKeyMessage: msg})))
	}

	// 拦截器同步执行，Publish 返回时已可见
	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	mu.Unlock()

	assert.Eventually(t, func() bool { return delivered.Load() == 9 }, time.Second, 10*time.Millisecond)
}

func TestInterceptErrorDoesNotBlockDelivery(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(5 * time.Second)

	bus.Intercept(func(next EventHandler) EventHandler {
		return func(event Event) error {
			return errors.New("写入失败")
		}
	})

	var received atomic.Bool
	bus.Subscribe("test", func(Event) error {
		received.Store(true)
		return nil
	})

	require.NoError(t, bus.Publish("test", *NewEvent("test", nil)))
	assert.Eventually(t, received.Load, time.Second, 10*time.Millisecond)
}

func TestInterceptRemove(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(5 * time.Second)

	var first, second int
	removeFirst := bus.Intercept(func(next EventHandler) EventHandler {
		return func(event Event) error {
			first++
			return next(event)
		}
	})
	bus.Intercept(func(next EventHandler) EventHandler {
		return func(event Event) error {
			second++
			return next(event)
		}
	})
	assert.Equal(t, 2, bus.Interceptors())

	require.NoError(t, bus.Publish("test", *NewEvent("test", nil)))
	removeFirst()
	removeFirst()
	assert.Equal(t, 1, bus.Interceptors())

	require.NoError(t, bus.Publish("test", *NewEvent("test", nil)))
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestStop(t *testing.T) {
	bus := NewEventBus()

	for i := 0; i < 5; i++ {
		bus.Subscribe("test", func(event Event) error { return nil })
	}

	require.NoError(t, bus.Stop(10*time.Second))
	assert.True(t, bus.stopped.Load())

	// 再次停止是空操作
	assert.NoError(t, bus.Stop(time.Second))

	err := bus.Publish("test", *NewEvent("test", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped")
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop(5 * time.Second)

	var count atomic.Int32
	bus.Subscribe("*", func(event Event) error {
		count.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	numEvents := 100
	for i := 0; i < numEvents; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, bus.Publish("test", *NewEvent("test", map[string]interface{}{"id": id})))
		}(i)
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return count.Load() == int32(numEvents) }, 2*time.Second, 10*time.Millisecond)
}

/**
 * BenchmarkEventBusPublish 基准测试：发布性能
 */
func BenchmarkEventBusPublish(b *testing.B) {
	bus := NewEventBus()
	defer bus.Stop(5 * time.Second)

	bus.Subscribe("test", func(event Event) error {
		return nil
	})

	event := *NewEvent("test", map[string]interface{}{DataKeyMessage: "benchmark"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := bus.Publish("test", event); err != nil {
			b.Fatalf("Failed to publish: %v", err)
		}
	}
}
