package models

import "fmt"

/**
 * NoticeKind 通知类型
 */
type NoticeKind string

const (
	// NoticeStarted 操作开始
	NoticeStarted NoticeKind = "started"

	// NoticeMiddleTrigger 中间触发器首次命中
	NoticeMiddleTrigger NoticeKind = "middle_trigger"

	// NoticeSwitched 切换到候选模式
	NoticeSwitched NoticeKind = "switched"

	// NoticeCompleted 正常完成
	NoticeCompleted NoticeKind = "completed"

	// NoticeInterrupted 超时放弃
	NoticeInterrupted NoticeKind = "interrupted"

	// NoticeCancelled 无关动作过多而放弃
	NoticeCancelled NoticeKind = "cancelled"
)

/**
 * Notice 分析步骤产生的单行结果
 */
type Notice struct {
	// Kind 通知类型
	Kind NoticeKind `json:"kind"`

	// Text 人类可读的单行文本
	Text string `json:"text"`

	// OperationID 相关操作 ID
	OperationID string `json:"operation_id,omitempty"`

	// PatternKey 相关模式键
	PatternKey string `json:"pattern_key,omitempty"`

	// Trigger 命中的触发器（中间触发器和切换）
	Trigger string `json:"trigger,omitempty"`

	// Timestamp 产生通知的动作时间戳
	Timestamp string `json:"timestamp,omitempty"`
}

// String 实现 fmt.Stringer
func (n Notice) String() string {
	return n.Text
}

// IsFinal 是否为结束类通知
func (n Notice) IsFinal() bool {
	return n.Kind == NoticeCompleted || n.Kind == NoticeInterrupted || n.Kind == NoticeCancelled
}

/**
 * Statistics 归档操作统计
 */
type Statistics struct {
	// Total 归档操作总数
	Total int `json:"total"`

	// Completed 正常完成数
	Completed int `json:"completed"`

	// Interrupted 超时放弃数
	Interrupted int `json:"interrupted"`

	// Cancelled 无关动作过多放弃数
	Cancelled int `json:"cancelled"`

	// Superseded 被替换数
	Superseded int `json:"superseded"`

	// NotCompleted 未完成总数（Total - Completed）
	NotCompleted int `json:"not_completed"`

	// MeanDurationSeconds 平均时长（秒）
	MeanDurationSeconds float64 `json:"mean_duration_seconds"`
}

// String 渲染统计行；没有归档操作时返回 "No completed operations"
func (s Statistics) String() string {
	if s.Total == 0 {
		return "No completed operations"
	}
	return fmt.Sprintf("📈 Statistics: %d operations | ✅ %d completed | ⚠️ %d interrupted | ⏱️ mean %.1fs",
		s.Total, s.Completed, s.NotCompleted, s.MeanDurationSeconds)
}

/**
 * ComputeStatistics 根据归档操作计算统计
 *
 * Parameters:
 *   - ops: 归档操作
 *
 * Returns: Statistics - 统计结果
 */
func ComputeStatistics(ops []*Operation) Statistics {
	var s Statistics
	var total float64
	for _, op := range ops {
		if op == nil {
			continue
		}
		s.Total++
		switch {
		case op.Completed:
			s.Completed++
		case op.Outcome == OutcomeInterrupted:
			s.Interrupted++
		case op.Outcome == OutcomeCancelled:
			s.Cancelled++
		case op.Outcome == OutcomeSuperseded:
			s.Superseded++
		}
		total += op.Duration().Seconds()
	}
	s.NotCompleted = s.Total - s.Completed
	if s.Total > 0 {
		s.MeanDurationSeconds = total / float64(s.Total)
	}
	return s
}
