package analyzer

import (
	"fmt"
	"strings"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"go.uber.org/zap"
)

/**
 * Analyze 执行一个分析步骤
 *
 * 步骤顺序：记录最近动作 → 超时检查 → 切换候选 → 中间触发器 → 噪声检查 → 追加并检查完成 → 开始检测。
 * 整个步骤只读取一次模式库快照。
 *
 * Parameters:
 *   - ev: 动作事件，nil 或事件类型无效时忽略
 *
 * Returns: []models.Notice - 本步骤产生的通知（按产生顺序）
 */
func (a *OperationAnalyzer) Analyze(ev *models.ActionEvent) (notices []models.Notice) {
	if ev == nil || !ev.EventType.Valid() {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			a.log.Error("分析步骤发生 panic，丢弃进行中的操作",
				zap.Any("panic", r),
				zap.String("timestamp", ev.Timestamp))
			a.current = nil
		}
	}()

	a.recent.Push(*ev)
	patterns := a.provider.Snapshot()
	fields := ev.MatchFields()

	if a.current != nil && len(a.current.Actions) > 0 && ev.Timestamp != "" && a.timedOut(patterns, ev.Timestamp) {
		notices = append(notices, a.finalize(models.OutcomeInterrupted, ev.Timestamp))
	}

	progressed := false
	if a.current != nil {
		switched := false
		if len(a.current.AlternativeOperations) > 0 {
			if n, ok := a.trySwitch(patterns, ev, fields); ok {
				notices = append(notices, n)
				switched, progressed = true, true
			}
		}
		if !switched {
			if n, ok := a.evaluateMiddle(patterns, ev, fields); ok {
				notices = append(notices, n)
				progressed = true
			}
		}

		if a.current.UnrelatedActionsCount > a.maxUnrelated {
			notices = append(notices, a.finalize(models.OutcomeCancelled, ev.Timestamp))
		} else {
			a.current.AddAction(*ev)
			if a.isComplete(patterns, ev) {
				a.current.Completed = true
				return append(notices, a.finalize(models.OutcomeCompleted, ev.Timestamp))
			}
		}
	}

	if a.current != nil && progressed {
		return notices
	}

	if n, ok := a.detectStart(patterns, ev, fields); ok {
		notices = append(notices, n)
	}
	return notices
}

// timedOut 距上一个动作的间隔是否严格大于模式超时；时间戳无法解析时视为未超时
func (a *OperationAnalyzer) timedOut(patterns *models.PatternSet, now string) bool {
	elapsed, ok := models.Elapsed(a.current.EndTime, now)
	if !ok {
		return false
	}
	limit := a.defaultTimeout
	if p, found := patterns.Get(a.current.PatternKey); found {
		limit = p.TimeoutDuration(a.defaultTimeout)
	}
	return elapsed > limit
}

/**
 * trySwitch 检查候选模式，命中则把当前操作切换过去
 *
 * 候选有中间触发器时按元素名、事件类型、路径匹配中间触发器；
 * 没有中间触发器时只用元素名匹配完成触发器。按候选顺序第一个命中的获胜，其余候选全部丢弃。
 */
func (a *OperationAnalyzer) trySwitch(patterns *models.PatternSet, ev *models.ActionEvent, fields []string) (models.Notice, bool) {
	cur := a.current
	for _, key := range cur.AlternativeOperations {
		alt, ok := patterns.Get(key)
		if !ok {
			continue
		}

		if alt.HasMiddleTriggers() {
			trigger, hit := a.matcher.FirstMatch(alt.MiddleTriggers, fields...)
			if !hit {
				continue
			}
			from := a.switchTo(key, alt)
			cur.MarkMiddleTrigger(trigger)
			return models.Notice{
				Kind:        models.NoticeSwitched,
				Text:        fmt.Sprintf("   🔀 Switched: %s → %s (trigger: %s)", from, alt.Name, trigger),
				OperationID: cur.ID,
				PatternKey:  key,
				Trigger:     trigger,
				Timestamp:   ev.Timestamp,
			}, true
		}

		if trigger, hit := a.matcher.FirstMatch(alt.CompletionTriggers, ev.ElementName); hit {
			from := a.switchTo(key, alt)
			return models.Notice{
				Kind:        models.NoticeSwitched,
				Text:        fmt.Sprintf("   🔀 Switched: %s → %s (by completion trigger)", from, alt.Name),
				OperationID: cur.ID,
				PatternKey:  key,
				Trigger:     trigger,
				Timestamp:   ev.Timestamp,
			}, true
		}
	}
	return models.Notice{}, false
}

// switchTo 原地修改当前操作的模式，返回切换前的名称
func (a *OperationAnalyzer) switchTo(key string, p *models.OperationPattern) string {
	cur := a.current
	from := cur.OperationType

	cur.PatternKey = key
	cur.OperationType = p.Name
	cur.AlternativeOperations = nil
	cur.MiddleTriggersMatched = true
	cur.UnrelatedActionsCount = 0

	a.log.Debug("切换操作",
		zap.String("operation_id", cur.ID),
		zap.String("from", from),
		zap.String("to", p.Name))
	return from
}

/**
 * evaluateMiddle 检查当前模式的中间触发器
 *
 * 模式已不存在时什么都不做；没有中间触发器时视为已满足但仍计为无关动作；
 * 命中新触发器时记录并产生通知；只命中已记录的触发器时仅重置计数。
 */
func (a *OperationAnalyzer) evaluateMiddle(patterns *models.PatternSet, ev *models.ActionEvent, fields []string) (models.Notice, bool) {
	cur := a.current
	p, ok := patterns.Get(cur.PatternKey)
	if !ok {
		return models.Notice{}, false
	}

	if !p.HasMiddleTriggers() {
		cur.MiddleTriggersMatched = true
		cur.UnrelatedActionsCount++
		return models.Notice{}, false
	}

	relevant := false
	for _, trigger := range p.MiddleTriggers {
		if !a.matcher.MatchAny(trigger, fields...) {
			continue
		}
		relevant = true
		if cur.HasMiddleTrigger(trigger) {
			continue
		}
		cur.MarkMiddleTrigger(trigger)
		cur.UnrelatedActionsCount = 0
		return models.Notice{
			Kind:        models.NoticeMiddleTrigger,
			Text:        "   🔄 Middle trigger: " + trigger,
			OperationID: cur.ID,
			PatternKey:  cur.PatternKey,
			Trigger:     trigger,
			Timestamp:   ev.Timestamp,
		}, true
	}

	if relevant {
		cur.UnrelatedActionsCount = 0
	} else {
		cur.UnrelatedActionsCount++
	}
	return models.Notice{}, false
}

// isComplete 元素名是否命中完成触发器；定义了中间触发器的模式必须先出现中间进展
func (a *OperationAnalyzer) isComplete(patterns *models.PatternSet, ev *models.ActionEvent) bool {
	cur := a.current
	p, ok := patterns.Get(cur.PatternKey)
	if !ok {
		return false
	}
	if _, hit := a.matcher.FirstMatch(p.CompletionTriggers, ev.ElementName); !hit {
		return false
	}
	if p.HasMiddleTriggers() && !cur.MiddleTriggersMatched {
		a.log.Debug("完成触发器命中但尚无中间进展",
			zap.String("operation_id", cur.ID),
			zap.String("pattern_key", cur.PatternKey))
		return false
	}
	return true
}

// candidate 开始检测的候选
type candidate struct {
	key     string
	pattern *models.OperationPattern
}

/**
 * detectStart 开始检测
 *
 * 常驻模式（无开始触发器）在没有同名操作进行中时总是候选；其余模式任一开始触发器命中即为候选。
 * 按模式库顺序第一个候选获胜，其余候选成为切换候选。仍有操作进行中时静默替换它。
 */
func (a *OperationAnalyzer) detectStart(patterns *models.PatternSet, ev *models.ActionEvent, fields []string) (models.Notice, bool) {
	var candidates []candidate
	for _, p := range patterns.All() {
		if p.IsAmbient() {
			if a.current != nil && a.current.OperationType == p.Name {
				continue
			}
			candidates = append(candidates, candidate{key: p.Key, pattern: p})
			continue
		}
		if _, hit := a.matcher.FirstMatch(p.StartTriggers, fields...); hit {
			candidates = append(candidates, candidate{key: p.Key, pattern: p})
		}
	}

	if len(candidates) == 0 {
		return models.Notice{}, false
	}

	if a.current != nil {
		a.finalize(models.OutcomeSuperseded, ev.Timestamp)
	}

	winner := candidates[0]
	op := models.NewOperation(winner.key, winner.pattern.Name, ev.Timestamp)
	op.AddAction(*ev)
	for _, c := range candidates[1:] {
		if c.pattern.Name != winner.pattern.Name {
			op.AlternativeOperations = append(op.AlternativeOperations, c.key)
		}
	}
	a.current = op

	a.log.Debug("操作开始",
		zap.String("operation_id", op.ID),
		zap.String("pattern_key", op.PatternKey),
		zap.Strings("alternatives", op.AlternativeOperations))

	if winner.pattern.IsAmbient() {
		return models.Notice{}, false
	}

	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.pattern.Name)
	}
	return models.Notice{
		Kind:        models.NoticeStarted,
		Text:        "▶️ Operation started: " + strings.Join(names, " or "),
		OperationID: op.ID,
		PatternKey:  op.PatternKey,
		Timestamp:   ev.Timestamp,
	}, true
}

/**
 * finalize 归档当前操作并清空当前槽位
 *
 * Parameters:
 *   - outcome: 结束方式
 *   - at: 触发归档的动作时间戳
 *
 * Returns: models.Notice - 对应的通知（被替换时调用方丢弃）
 */
func (a *OperationAnalyzer) finalize(outcome models.Outcome, at string) models.Notice {
	op := a.current
	op.Context = ExtractContext(op.Actions)
	op.Outcome = outcome
	a.archive = append(a.archive, op)
	a.current = nil

	a.log.Info("操作归档",
		zap.String("operation_id", op.ID),
		zap.String("operation", op.OperationType),
		zap.String("outcome", outcome.String()),
		zap.Int("actions", len(op.Actions)),
		zap.Duration("duration", op.Duration()))

	for _, o := range a.observers {
		o.OnFinalize(op.Clone())
	}

	n := models.Notice{
		OperationID: op.ID,
		PatternKey:  op.PatternKey,
		Timestamp:   at,
	}
	switch outcome {
	case models.OutcomeCompleted:
		n.Kind = models.NoticeCompleted
		n.Text = op.Summary()
	case models.OutcomeInterrupted:
		n.Kind = models.NoticeInterrupted
		n.Text = op.Summary() + " | ⚠️ Interrupted (timeout)"
	case models.OutcomeCancelled:
		n.Kind = models.NoticeCancelled
		n.Text = op.Summary() + fmt.Sprintf(" | ❌ Cancelled (>%d unrelated actions)", a.maxUnrelated)
	}
	return n
}
