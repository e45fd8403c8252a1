/**
 * Package models 定义操作识别引擎的领域模型
 *
 * 包含界面动作事件、操作模式、业务操作、通知和统计等核心数据结构
 */

package models

import (
	"strings"
	"time"
)

/**
 * EventType 动作事件类型
 *
 * 封闭枚举：只有焦点、点击、输入三种
 */
type EventType string

const (
	// EventFocus 焦点切换
	EventFocus EventType = "FOCUS"

	// EventClick 点击
	EventClick EventType = "CLICK"

	// EventInput 文本框内容变化
	EventInput EventType = "INPUT"
)

// eventTypeAliases 事件类型的本地化写法（采集端输出俄文标记）
var eventTypeAliases = map[string]EventType{
	"FOCUS": EventFocus,
	"CLICK": EventClick,
	"INPUT": EventInput,
	"ФОКУС": EventFocus,
	"КЛИК":  EventClick,
	"ВВОД":  EventInput,
}

// EventTypes 按解析优先级排列的全部事件类型
var EventTypes = []EventType{EventFocus, EventClick, EventInput}

/**
 * ParseEventType 解析事件类型标记
 *
 * 大小写敏感，接受英文标记和俄文标记，不做裁剪
 *
 * Parameters:
 *   - token: 标记文本
 *
 * Returns: EventType - 事件类型, bool - 是否为保留标记
 */
func ParseEventType(token string) (EventType, bool) {
	t, ok := eventTypeAliases[token]
	return t, ok
}

// Aliases 返回该事件类型的全部文本写法
func (t EventType) Aliases() []string {
	var out []string
	for _, token := range []string{"FOCUS", "CLICK", "INPUT", "ФОКУС", "КЛИК", "ВВОД"} {
		if eventTypeAliases[token] == t {
			out = append(out, token)
		}
	}
	return out
}

// Valid 是否为已知事件类型
func (t EventType) Valid() bool {
	return t == EventFocus || t == EventClick || t == EventInput
}

// String 实现 fmt.Stringer
func (t EventType) String() string {
	return string(t)
}

/**
 * ActionEvent 一次界面动作
 *
 * 由解析器产生，每个分析步骤消费一个
 */
type ActionEvent struct {
	// Timestamp 时间戳，格式 HH:MM:SS.mmm（可能为空）
	Timestamp string `json:"timestamp"`

	// EventType 事件类型
	EventType EventType `json:"event_type"`

	// ControlType 控件类型
	ControlType string `json:"control_type,omitempty"`

	// ElementName 元素名称
	ElementName string `json:"element_name,omitempty"`

	// AutomationID 自动化 ID
	AutomationID string `json:"automation_id,omitempty"`

	// ClassName 控件类名
	ClassName string `json:"class_name,omitempty"`

	// Path 元素祖先路径（"Panel → Tab 'Sales' → Button 'OK'"）
	Path string `json:"path,omitempty"`

	// OldValue 输入前的值（仅 INPUT）
	OldValue string `json:"old_value,omitempty"`

	// NewValue 输入后的值（仅 INPUT）
	NewValue string `json:"new_value,omitempty"`
}

// MatchFields 触发器匹配使用的三个字段：元素名、事件类型、路径
func (e *ActionEvent) MatchFields() []string {
	return []string{e.ElementName, string(e.EventType), e.Path}
}

// IsFilledInput 是否为一次有效的字段填写
func (e *ActionEvent) IsFilledInput() bool {
	return e.EventType == EventInput && e.ElementName != "" && e.NewValue != ""
}

// clockLayout 时间戳格式；解析时允许任意位数的小数秒
const clockLayout = "15:04:05"

/**
 * ParseClock 解析 HH:MM:SS.mmm 时间戳为当日偏移量
 *
 * Parameters:
 *   - ts: 时间戳
 *
 * Returns: time.Duration - 自零点起的偏移, bool - 是否解析成功
 */
func ParseClock(ts string) (time.Duration, bool) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return 0, false
	}
	t, err := time.Parse(clockLayout, ts)
	if err != nil {
		return 0, false
	}
	offset := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return offset, true
}

/**
 * Elapsed 计算两个同日时间戳之间的间隔
 *
 * Parameters:
 *   - from: 起始时间戳
 *   - to: 结束时间戳
 *
 * Returns: time.Duration - to - from, bool - 任一端解析失败时为 false
 */
func Elapsed(from, to string) (time.Duration, bool) {
	start, ok := ParseClock(from)
	if !ok {
		return 0, false
	}
	end, ok := ParseClock(to)
	if !ok {
		return 0, false
	}
	return end - start, true
}
