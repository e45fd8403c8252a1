/**
 * Package events 提供事件系统的核心类型定义
 *
 * 事件系统用于：
 * - 监控引擎发布解析出的动作和操作通知
 * - 持久化、指标和终端输出订阅并处理事件
 */

package events

import (
	"time"

	"github.com/google/uuid"
)

/**
 * EventType 事件类型枚举
 */
type EventType string

/**
 * 所有事件类型常量
 */
const (
	// 监控事件
	EventTypeAction    EventType = "action"    // 解析出的界面动作
	EventTypeOperation EventType = "operation" // 操作通知（开始、切换、完成等）
	EventTypePatterns  EventType = "patterns"  // 模式库更新

	// 系统事件
	EventTypeError  EventType = "error"  // 错误事件
	EventTypeStatus EventType = "status" // 状态事件
)

// 常用数据键
const (
	DataKeyAction  = "action"
	DataKeyNotice  = "notice"
	DataKeyStatus  = "status"
	DataKeyMessage = "message"
)

/**
 * Event 统一事件结构
 */
type Event struct {
	// ID 事件唯一标识符
	ID string `json:"id"`

	// Type 事件类型
	Type EventType `json:"type"`

	// Timestamp 事件发布时间
	Timestamp time.Time `json:"timestamp"`

	// Data 事件数据（类型特定的数据）
	Data map[string]interface{} `json:"data"`

	// Metadata 事件元数据（可选的额外信息）
	Metadata map[string]string `json:"metadata,omitempty"`

	// Context 事件上下文信息
	Context *EventContext `json:"context,omitempty"`
}

/**
 * EventContext 事件上下文
 *
 * 描述事件来自哪个输入源
 */
type EventContext struct {
	// Source 输入源（日志文件路径或 stdin）
	Source string `json:"source,omitempty"`

	// SessionID 记录会话 ID
	SessionID string `json:"session_id,omitempty"`

	// Line 输入源中的行号
	Line int64 `json:"line,omitempty"`
}

/**
 * NewEvent 创建新事件
 *
 * Parameters:
 *   - eventType: 事件类型
 *   - data: 事件数据
 *
 * Returns:
 *   - *Event: 新创建的事件
 */
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		ID:        generateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Metadata:  make(map[string]string),
	}
}

/**
 * WithContext 设置事件上下文
 *
 * Parameters:
 *   - context: 事件上下文
 *
 * Returns:
 *   - *Event: 返回自身，支持链式调用
 */
func (e *Event) WithContext(context *EventContext) *Event {
	e.Context = context
	return e
}

/**
 * WithMetadata 添加元数据
 *
 * Parameters:
 *   - key: 元数据键
 *   - value: 元数据值
 *
 * Returns:
 *   - *Event: 返回自身，支持链式调用
 */
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Get 读取数据字段
func (e Event) Get(key string) (interface{}, bool) {
	if e.Data == nil {
		return nil, false
	}
	v, ok := e.Data[key]
	return v, ok
}

func generateEventID() string {
	return uuid.New().String()
}
