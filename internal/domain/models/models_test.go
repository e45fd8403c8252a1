package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseEventType 测试事件类型解析
func TestParseEventType(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected EventType
		ok       bool
	}{
		{name: "英文焦点", token: "FOCUS", expected: EventFocus, ok: true},
		{name: "俄文点击", token: "КЛИК", expected: EventClick, ok: true},
		{name: "俄文输入", token: "ВВОД", expected: EventInput, ok: true},
		{name: "小写不是保留标记", token: "focus", ok: false},
		{name: "带空格不是保留标记", token: " CLICK", ok: false},
		{name: "普通文本", token: "Save", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseEventType(tt.token)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

// TestEventType_Aliases 测试别名
func TestEventType_Aliases(t *testing.T) {
	assert.Equal(t, []string{"FOCUS", "ФОКУС"}, EventFocus.Aliases())
	assert.True(t, EventInput.Valid())
	assert.False(t, EventType("SCROLL").Valid())
}

// TestParseClock 测试时间戳解析
func TestParseClock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		ok       bool
	}{
		{name: "毫秒时间戳", input: "10:00:00.500", expected: 10*time.Hour + 500*time.Millisecond, ok: true},
		{name: "无小数秒", input: "00:01:02", expected: time.Minute + 2*time.Second, ok: true},
		{name: "空字符串", input: "", ok: false},
		{name: "非法时间", input: "25:00:00.000", ok: false},
		{name: "垃圾输入", input: "yesterday", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseClock(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

// TestElapsed 测试时间间隔
func TestElapsed(t *testing.T) {
	d, ok := Elapsed("10:00:00.000", "10:00:03.500")
	require.True(t, ok)
	assert.Equal(t, 3500*time.Millisecond, d)

	_, ok = Elapsed("bad", "10:00:03.500")
	assert.False(t, ok)
}

// TestActionEvent 测试动作事件辅助方法
func TestActionEvent(t *testing.T) {
	ev := ActionEvent{EventType: EventInput, ElementName: "Amount", NewValue: "10", Path: "Form → Edit 'Amount'"}
	assert.Equal(t, []string{"Amount", "INPUT", "Form → Edit 'Amount'"}, ev.MatchFields())
	assert.True(t, ev.IsFilledInput())

	ev.NewValue = ""
	assert.False(t, ev.IsFilledInput())

	click := ActionEvent{EventType: EventClick, ElementName: "OK", NewValue: "x"}
	assert.False(t, click.IsFilledInput())
}

// TestPatternSet 测试模式快照
func TestPatternSet(t *testing.T) {
	set := NewPatternSet(3, []*OperationPattern{
		{Key: "b", Name: "B", CompletionTriggers: []string{"Save"}},
		{Key: "a", Name: "A", StartTriggers: []string{"New"}, CompletionTriggers: []string{"OK"}},
		{Key: "b", Name: "B2", CompletionTriggers: []string{"Save"}},
		nil,
	})

	assert.Equal(t, uint64(3), set.Version())
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"b", "a"}, set.Keys(), "保留首次出现的位置")

	b, ok := set.Get("b")
	require.True(t, ok)
	assert.Equal(t, "B2", b.Name, "保留最后一次出现的内容")
	assert.True(t, b.IsAmbient())

	a, _ := set.Get("a")
	assert.False(t, a.IsAmbient())

	_, ok = set.Get("missing")
	assert.False(t, ok)

	all := set.All()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].Key)
}

// TestPatternSet_Nil 测试空快照
func TestPatternSet_Nil(t *testing.T) {
	var set *PatternSet
	assert.Equal(t, 0, set.Len())
	assert.Nil(t, set.Keys())
	assert.Nil(t, set.All())
	_, ok := set.Get("x")
	assert.False(t, ok)
}

// TestPatternSet_Isolation 测试快照与输入隔离
func TestPatternSet_Isolation(t *testing.T) {
	p := &OperationPattern{Key: "a", Name: "A", CompletionTriggers: []string{"Save"}}
	set := NewPatternSet(1, []*OperationPattern{p})
	p.CompletionTriggers[0] = "changed"

	got, _ := set.Get("a")
	assert.Equal(t, "Save", got.CompletionTriggers[0])
}

// TestOperationPattern_TimeoutDuration 测试超时时间
func TestOperationPattern_TimeoutDuration(t *testing.T) {
	p := &OperationPattern{Timeout: 10}
	assert.Equal(t, 10*time.Second, p.TimeoutDuration(30*time.Second))

	p.Timeout = 0
	assert.Equal(t, 30*time.Second, p.TimeoutDuration(30*time.Second))

	var nilPattern *OperationPattern
	assert.Equal(t, 5*time.Second, nilPattern.TimeoutDuration(5*time.Second))
}

// TestOperation_Lifecycle 测试操作记录
func TestOperation_Lifecycle(t *testing.T) {
	op := NewOperation("create", "Create document", "10:00:00.000")
	assert.NotEmpty(t, op.ID)
	assert.True(t, op.IsOpen())

	op.AddAction(ActionEvent{Timestamp: "10:00:00.000", EventType: EventFocus, ElementName: "New"})
	op.AddAction(ActionEvent{Timestamp: "10:00:02.250", EventType: EventClick, ElementName: "Save"})

	assert.Equal(t, "10:00:02.250", op.EndTime)
	assert.Equal(t, 2250*time.Millisecond, op.Duration())

	assert.True(t, op.MarkMiddleTrigger("Line"))
	assert.False(t, op.MarkMiddleTrigger("Line"))
	assert.True(t, op.MarkMiddleTrigger("Total"))
	assert.Equal(t, []string{"Line", "Total"}, op.MatchedMiddleTriggers)
	assert.True(t, op.HasMiddleTrigger("Total"))
	assert.True(t, op.MiddleTriggersMatched)
}

// TestOperation_Duration 测试时长容错
func TestOperation_Duration(t *testing.T) {
	op := NewOperation("k", "K", "garbage")
	op.AddAction(ActionEvent{Timestamp: "10:00:01.000"})
	assert.Equal(t, time.Duration(0), op.Duration())

	empty := NewOperation("k", "K", "")
	assert.Equal(t, time.Duration(0), empty.Duration())
}

// TestOperation_Summary 测试摘要文本
func TestOperation_Summary(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *Operation
		expected string
	}{
		{
			name: "完成且有上下文",
			build: func() *Operation {
				op := NewOperation("inv", "Invoice", "10:00:00.000")
				op.AddAction(ActionEvent{Timestamp: "10:00:03.500"})
				op.Context = map[string]int{ContextFieldsFilled: 2}
				op.Completed = true
				return op
			},
			expected: "🎯 Invoice (fields filled: 2) | ⏱️ 3.5s | 📊 1 actions | ✅ Completed",
		},
		{
			name: "未完成无上下文",
			build: func() *Operation {
				op := NewOperation("inv", "Invoice", "10:00:00.000")
				op.AddAction(ActionEvent{Timestamp: "10:00:00.000"})
				op.AddAction(ActionEvent{Timestamp: "10:00:01.000"})
				return op
			},
			expected: "🎯 Invoice | ⏱️ 1.0s | 📊 2 actions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.build().Summary())
		})
	}
}

// TestOperation_Clone 测试深拷贝
func TestOperation_Clone(t *testing.T) {
	op := NewOperation("a", "A", "10:00:00.000")
	op.AddAction(ActionEvent{Timestamp: "10:00:00.000", ElementName: "New"})
	op.AlternativeOperations = []string{"b"}
	op.Context = map[string]int{ContextFieldsFilled: 1}

	c := op.Clone()
	c.Actions[0].ElementName = "changed"
	c.AlternativeOperations[0] = "z"
	c.Context[ContextFieldsFilled] = 9

	assert.Equal(t, "New", op.Actions[0].ElementName)
	assert.Equal(t, []string{"b"}, op.AlternativeOperations)
	assert.Equal(t, 1, op.Context[ContextFieldsFilled])

	var nilOp *Operation
	assert.Nil(t, nilOp.Clone())
}

// TestComputeStatistics 测试统计
func TestComputeStatistics(t *testing.T) {
	assert.Equal(t, "No completed operations", ComputeStatistics(nil).String())

	mk := func(outcome Outcome, end string) *Operation {
		op := NewOperation("k", "K", "10:00:00.000")
		op.AddAction(ActionEvent{Timestamp: end})
		op.Outcome = outcome
		op.Completed = outcome == OutcomeCompleted
		return op
	}

	stats := ComputeStatistics([]*Operation{
		mk(OutcomeCompleted, "10:00:02.000"),
		mk(OutcomeCompleted, "10:00:04.000"),
		mk(OutcomeInterrupted, "10:00:00.000"),
		mk(OutcomeCancelled, "10:00:06.000"),
		mk(OutcomeSuperseded, "10:00:03.000"),
	})

	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Interrupted)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 1, stats.Superseded)
	assert.Equal(t, 3, stats.NotCompleted)
	assert.InDelta(t, 3.0, stats.MeanDurationSeconds, 1e-9)
	assert.Equal(t, "📈 Statistics: 5 operations | ✅ 2 completed | ⚠️ 3 interrupted | ⏱️ mean 3.0s", stats.String())
}

// TestNotice 测试通知
func TestNotice(t *testing.T) {
	n := Notice{Kind: NoticeCancelled, Text: "x"}
	assert.True(t, n.IsFinal())
	assert.Equal(t, "x", n.String())
	assert.False(t, Notice{Kind: NoticeStarted}.IsFinal())
	assert.Equal(t, "open", OutcomeOpen.String())
}
