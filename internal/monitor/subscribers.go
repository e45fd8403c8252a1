package monitor

import (
	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/pkg/events"
)

/**
 * Recorder 动作、通知和引擎状态的观察者（指标）
 */
type Recorder interface {
	ObserveAction(ev *models.ActionEvent)
	ObserveNotice(n models.Notice)
	ObserveStatus(status string)
}

// ActionOf 取出 action 事件携带的动作
func ActionOf(event events.Event) (models.ActionEvent, bool) {
	if event.Type != events.EventTypeAction {
		return models.ActionEvent{}, false
	}
	raw, _ := event.Get(events.DataKeyAction)
	action, ok := raw.(models.ActionEvent)
	return action, ok
}

// NoticeOf 取出 operation 事件携带的通知
func NoticeOf(event events.Event) (models.Notice, bool) {
	if event.Type != events.EventTypeOperation {
		return models.Notice{}, false
	}
	raw, _ := event.Get(events.DataKeyNotice)
	notice, ok := raw.(models.Notice)
	return notice, ok
}

// FromSession 只接受指定会话的事件，id 为空时接受未记录的运行
func FromSession(id string) events.EventFilter {
	return func(event events.Event) bool {
		if event.Context == nil {
			return id == ""
		}
		return event.Context.SessionID == id
	}
}

/**
 * SubscribeRecorder 把 action、operation 和 status 事件同步交给观察者
 *
 * Parameters:
 *   - bus: 事件总线
 *   - r: 观察者
 *
 * Returns: func() - 取消订阅
 */
func SubscribeRecorder(bus *events.EventBus, r Recorder) func() {
	actionID := bus.SubscribeSync(string(events.EventTypeAction), func(event events.Event) error {
		if action, ok := ActionOf(event); ok {
			r.ObserveAction(&action)
		}
		return nil
	}, nil)
	noticeID := bus.SubscribeSync(string(events.EventTypeOperation), func(event events.Event) error {
		if n, ok := NoticeOf(event); ok {
			r.ObserveNotice(n)
		}
		return nil
	}, nil)

	statusID := bus.SubscribeSync(string(events.EventTypeStatus), func(event events.Event) error {
		if status, ok := event.Get(events.DataKeyStatus); ok {
			if s, ok := status.(string); ok {
				r.ObserveStatus(s)
			}
		}
		return nil
	}, nil)

	return func() {
		bus.Unsubscribe(actionID)
		bus.Unsubscribe(noticeID)
		bus.Unsubscribe(statusID)
	}
}

/**
 * SubscribeNotices 按产生顺序把通知同步交给 fn
 *
 * Parameters:
 *   - bus: 事件总线
 *   - filter: 事件过滤器（可选），例如 FromSession
 *   - fn: 通知回调
 *
 * Returns: func() - 取消订阅
 */
func SubscribeNotices(bus *events.EventBus, filter events.EventFilter, fn func(models.Notice)) func() {
	id := bus.SubscribeSync(string(events.EventTypeOperation), func(event events.Event) error {
		if n, ok := NoticeOf(event); ok {
			fn(n)
		}
		return nil
	}, filter)
	return func() { bus.Unsubscribe(id) }
}
