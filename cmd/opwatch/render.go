package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/chenyang-zz/opwatch/internal/app"
	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/internal/infrastructure/storage"
	"github.com/chenyang-zz/opwatch/pkg/events"
)

// Colors
var (
	accent  = lipgloss.Color("#5F87FF")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	danger  = lipgloss.Color("#FF4444")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warning).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(danger).Bold(true)
	labelStyle   = lipgloss.NewStyle().Width(10)
)

const rule = "─────────────────────────────────────"

// noticeLabels 通知类型的标签和样式
var noticeLabels = map[models.NoticeKind]struct {
	label string
	style lipgloss.Style
}{
	models.NoticeStarted:       {"▸ START", accentStyle},
	models.NoticeMiddleTrigger: {"· STEP", mutedStyle},
	models.NoticeSwitched:      {"↻ SWITCH", warningStyle},
	models.NoticeCompleted:     {"✓ DONE", successStyle},
	models.NoticeInterrupted:   {"✗ TIMEOUT", errorStyle},
	models.NoticeCancelled:     {"✗ CANCEL", errorStyle},
}

func renderHeader(w io.Writer, action, target string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  OPWATCH")+mutedStyle.Render(" v"+version))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(action), titleStyle.Render(target))
	fmt.Fprintln(w)
}

func renderNotice(w io.Writer, n models.Notice) {
	entry, ok := noticeLabels[n.Kind]
	if !ok {
		entry.label, entry.style = string(n.Kind), mutedStyle
	}
	ts := n.Timestamp
	if ts == "" {
		ts = "            "
	}
	text := n.Text
	if n.IsFinal() {
		text = titleStyle.Render(text)
	}
	fmt.Fprintf(w, "  %s %s %s\n",
		mutedStyle.Render(ts),
		entry.style.Inherit(labelStyle).Render(entry.label),
		text,
	)
}

// renderPatternsChange 渲染 patterns 事件
func renderPatternsChange(w io.Writer, e events.Event) {
	version, _ := e.Get("version")
	keys, _ := e.Get("keys")
	n := 0
	if list, ok := keys.([]string); ok {
		n = len(list)
	}
	fmt.Fprintf(w, "  %s %s %s\n",
		mutedStyle.Render(e.Timestamp.Format("15:04:05.000")),
		warningStyle.Inherit(labelStyle).Render("↻ PATTERNS"),
		mutedStyle.Render(fmt.Sprintf("v%v · %d patterns", version, n)),
	)
}

// lockedWriter 串行化来自多个 goroutine 的输出
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func renderSummary(w io.Writer, result app.RunResult) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, mutedStyle.Render("  "+rule))
	renderStatistics(w, result.Stats.Operations)
	fmt.Fprintf(w, "  %s %d lines · %d actions · %d notices\n",
		mutedStyle.Render("Input:"), result.Stats.Lines, result.Stats.Actions, result.Stats.Notices)
	if cur := result.Stats.Current; cur != nil {
		fmt.Fprintf(w, "  %s %s (%s, %d actions)\n",
			mutedStyle.Render("Open:"), cur.OperationType, cur.PatternKey, len(cur.Actions))
	}
	if result.SessionID != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Session:"), titleStyle.Render(result.SessionID))
	}
	if j := result.Journal; j.Accepted > 0 || j.Dropped > 0 {
		fmt.Fprintf(w, "  %s %d persisted · %d dropped · %d failed\n",
			mutedStyle.Render("Journal:"), j.Persisted, j.Dropped, j.Failed)
	}
	fmt.Fprintln(w, mutedStyle.Render("  "+rule))
}

func renderStatistics(w io.Writer, s models.Statistics) {
	fmt.Fprintf(w, "  %s\n", titleStyle.Render(s.String()))
}

func renderStatsTable(w io.Writer, result app.RunResult) {
	s := result.Stats.Operations
	rows := []struct {
		label string
		value string
		style lipgloss.Style
	}{
		{"Total", fmt.Sprint(s.Total), titleStyle},
		{"Completed", fmt.Sprint(s.Completed), successStyle},
		{"Interrupted", fmt.Sprint(s.Interrupted), errorStyle},
		{"Cancelled", fmt.Sprint(s.Cancelled), errorStyle},
		{"Superseded", fmt.Sprint(s.Superseded), warningStyle},
		{"Mean", fmt.Sprintf("%.1fs", s.MeanDurationSeconds), titleStyle},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Inherit(lipgloss.NewStyle().Width(12)).Render(r.label), r.style.Render(r.value))
	}

	byPattern := map[string]int{}
	var order []string
	for _, op := range result.Operations {
		if op.Outcome != models.OutcomeCompleted {
			continue
		}
		if _, seen := byPattern[op.PatternKey]; !seen {
			order = append(order, op.PatternKey)
		}
		byPattern[op.PatternKey]++
	}
	if len(order) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, accentStyle.Render("▸ COMPLETED BY PATTERN"))
		for _, key := range order {
			fmt.Fprintf(w, "  %s %d\n", mutedStyle.Inherit(lipgloss.NewStyle().Width(20)).Render(key), byPattern[key])
		}
	}
}

func renderPatterns(w io.Writer, list []*models.OperationPattern) {
	if len(list) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No patterns"))
		return
	}
	fmt.Fprintln(w, accentStyle.Render(fmt.Sprintf("▸ PATTERNS (%d)", len(list))))
	for _, p := range list {
		start := "ambient"
		if !p.IsAmbient() {
			start = strings.Join(p.StartTriggers, ", ")
		}
		fmt.Fprintf(w, "  %s %s\n", titleStyle.Render(p.Key), mutedStyle.Render("· "+p.Name))
		fmt.Fprintf(w, "    %s %s\n", mutedStyle.Render("start:"), start)
		if len(p.MiddleTriggers) > 0 {
			fmt.Fprintf(w, "    %s %s\n", mutedStyle.Render("middle:"), strings.Join(p.MiddleTriggers, ", "))
		}
		fmt.Fprintf(w, "    %s %s\n", mutedStyle.Render("done:"), strings.Join(p.CompletionTriggers, ", "))
		fmt.Fprintf(w, "    %s %ds\n", mutedStyle.Render("timeout:"), p.Timeout)
	}
}

func renderSessions(w io.Writer, sessions []storage.SessionInfo, stats *storage.JournalStats) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  No recorded sessions"))
		return
	}
	fmt.Fprintln(w, accentStyle.Render(fmt.Sprintf("▸ SESSIONS (%d)", len(sessions))))
	for _, s := range sessions {
		fmt.Fprintf(w, "  %s %s %s %s\n",
			titleStyle.Render(s.ID),
			mutedStyle.Render(s.StartedAt.Local().Format(time.DateTime)),
			fmt.Sprintf("%5d actions", s.ActionCount),
			mutedStyle.Render(s.Source),
		)
	}
	if stats != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %s %d actions in %d sessions\n", mutedStyle.Render("Total:"), stats.TotalCount, stats.SessionCount)
	}
}

func renderSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render("  ✓ ")+msg)
}
