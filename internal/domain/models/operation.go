package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContextFieldsFilled 上下文中"已填写字段数"的键
const ContextFieldsFilled = "fields filled"

/**
 * Outcome 操作的结束方式
 */
type Outcome string

const (
	// OutcomeOpen 仍在进行中
	OutcomeOpen Outcome = ""

	// OutcomeCompleted 正常完成
	OutcomeCompleted Outcome = "completed"

	// OutcomeInterrupted 超时放弃
	OutcomeInterrupted Outcome = "interrupted"

	// OutcomeCancelled 无关动作过多而放弃
	OutcomeCancelled Outcome = "cancelled"

	// OutcomeSuperseded 被新开始的操作静默替换
	OutcomeSuperseded Outcome = "superseded"
)

// String 实现 fmt.Stringer
func (o Outcome) String() string {
	if o == OutcomeOpen {
		return "open"
	}
	return string(o)
}

/**
 * Operation 一次被识别的业务操作
 *
 * 由分析器在检测到开始时创建，只由分析器修改，结束后归档
 */
type Operation struct {
	// ID 操作唯一标识
	ID string `json:"id"`

	// PatternKey 当前匹配的模式键（切换时会改变）
	PatternKey string `json:"pattern_key"`

	// OperationType 显示名称（与 PatternKey 同步变化）
	OperationType string `json:"operation_type"`

	// StartTime 第一个动作的时间戳
	StartTime string `json:"start_time"`

	// EndTime 最近一个动作的时间戳
	EndTime string `json:"end_time"`

	// Actions 按顺序追加的动作
	Actions []ActionEvent `json:"actions"`

	// Context 结束时计算一次的上下文
	Context map[string]int `json:"context,omitempty"`

	// Completed 仅在正常完成时为 true
	Completed bool `json:"completed"`

	// Outcome 结束方式
	Outcome Outcome `json:"outcome,omitempty"`

	// MiddleTriggersMatched 是否出现过中间进展，一旦为 true 不再回退
	MiddleTriggersMatched bool `json:"middle_triggers_matched"`

	// MatchedMiddleTriggers 已记录的中间触发器（插入顺序，不重复）
	MatchedMiddleTriggers []string `json:"matched_middle_triggers,omitempty"`

	// UnrelatedActionsCount 连续无关动作计数
	UnrelatedActionsCount int `json:"unrelated_actions_count"`

	// AlternativeOperations 开始时未被选中的候选模式键
	AlternativeOperations []string `json:"alternative_operations,omitempty"`
}

/**
 * NewOperation 创建操作
 *
 * Parameters:
 *   - patternKey: 模式键
 *   - name: 显示名称
 *   - startTime: 开始时间戳
 *
 * Returns: *Operation - 新操作
 */
func NewOperation(patternKey, name, startTime string) *Operation {
	return &Operation{
		ID:            uuid.New().String(),
		PatternKey:    patternKey,
		OperationType: name,
		StartTime:     startTime,
	}
}

// AddAction 追加动作并更新结束时间
func (o *Operation) AddAction(ev ActionEvent) {
	o.Actions = append(o.Actions, ev)
	o.EndTime = ev.Timestamp
}

/**
 * MarkMiddleTrigger 记录一个中间触发器
 *
 * Parameters:
 *   - trigger: 触发器
 *
 * Returns: bool - 是否为首次记录
 */
func (o *Operation) MarkMiddleTrigger(trigger string) bool {
	o.MiddleTriggersMatched = true
	for _, t := range o.MatchedMiddleTriggers {
		if t == trigger {
			return false
		}
	}
	o.MatchedMiddleTriggers = append(o.MatchedMiddleTriggers, trigger)
	return true
}

// HasMiddleTrigger 触发器是否已记录
func (o *Operation) HasMiddleTrigger(trigger string) bool {
	for _, t := range o.MatchedMiddleTriggers {
		if t == trigger {
			return true
		}
	}
	return false
}

// Duration 结束时间减开始时间；任一端无法解析时为 0
func (o *Operation) Duration() time.Duration {
	d, ok := Elapsed(o.StartTime, o.EndTime)
	if !ok {
		return 0
	}
	return d
}

/**
 * Summary 渲染单行摘要
 *
 * 格式：🎯 名称 (上下文) | ⏱️ 秒数s | 📊 N actions[ | ✅ Completed]
 *
 * Returns: string - 摘要文本
 */
func (o *Operation) Summary() string {
	var b strings.Builder
	b.WriteString("🎯 ")
	b.WriteString(o.OperationType)

	if len(o.Context) > 0 {
		keys := make([]string, 0, len(o.Context))
		for k := range o.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %d", k, o.Context[k]))
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(")")
	}

	fmt.Fprintf(&b, " | ⏱️ %.1fs | 📊 %d actions", o.Duration().Seconds(), len(o.Actions))

	if o.Completed {
		b.WriteString(" | ✅ Completed")
	}
	return b.String()
}

// IsOpen 是否仍在进行中
func (o *Operation) IsOpen() bool {
	return o.Outcome == OutcomeOpen
}

// Clone 深拷贝，供外部只读访问
func (o *Operation) Clone() *Operation {
	if o == nil {
		return nil
	}
	c := *o
	if o.Actions != nil {
		c.Actions = make([]ActionEvent, len(o.Actions))
		copy(c.Actions, o.Actions)
	}
	if o.Context != nil {
		c.Context = make(map[string]int, len(o.Context))
		for k, v := range o.Context {
			c.Context[k] = v
		}
	}
	c.MatchedMiddleTriggers = cloneStrings(o.MatchedMiddleTriggers)
	c.AlternativeOperations = cloneStrings(o.AlternativeOperations)
	return &c
}
