/**
 * Package parser 把采集端输出的日志行转换为动作事件
 *
 * 支持两种输入：
 * - 文本行：[10:00:01.123] КЛИК | Type: ButtonControl | Name: 'Записать' | Путь: Форма → Кнопка 'Записать'
 * - JSON 行：{"timestamp":"10:00:01.123","event_type":"CLICK","element_name":"Записать"}
 *
 * 无法解析的行一律视为"不是动作"，从不返回错误
 */

package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/pkg/logger"
	"go.uber.org/zap"
)

// systemMarkers 系统状态行标记，带这些标记的行不是动作
var systemMarkers = []string{
	"[СТАРТ]", "[СТОП]", "[ИНФО]", "[НАСТРОЙКИ]", "[УСПЕХ]", "[ОШИБКА]", "[ЭКСПОРТ]",
	"[START]", "[STOP]", "[INFO]", "[SETTINGS]", "[SUCCESS]", "[ERROR]", "[EXPORT]",
}

// eventTokens 事件类型标记，按检查顺序排列
var eventTokens = []struct {
	kind   models.EventType
	tokens []string
}{
	{models.EventFocus, []string{"ФОКУС", "FOCUS"}},
	{models.EventClick, []string{"КЛИК", "CLICK"}},
	{models.EventInput, []string{"ВВОД", "INPUT"}},
}

var (
	timestampRe    = regexp.MustCompile(`\[(\d{2}:\d{2}:\d{2}\.\d{3})\]`)
	leadingWordRe  = regexp.MustCompile(`^\s*(?:\[\d{2}:\d{2}:\d{2}\.\d{3}\])?[^\p{L}|]*(\p{L}+)`)
	controlTypeRe  = regexp.MustCompile(`Type: ([\p{L}\p{N}_]+)`)
	nameRe         = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])Name: '([^']*)'`)
	automationIDRe = regexp.MustCompile(`AutomationId: '([^']*)'`)
	classNameRe    = regexp.MustCompile(`ClassName: '([^']*)'`)
	pathRe         = regexp.MustCompile(`(?:Путь|Path): (.+?)\s*$`)
	valueDeltaRe   = regexp.MustCompile(`(?:Было|Old): '([^']*)' → (?:Стало|New): '([^']*)'`)
)

/**
 * Parser 日志行解析器
 *
 * 无状态，并发安全
 */
type Parser struct {
	log *zap.Logger
}

/**
 * New 创建解析器
 *
 * Parameters:
 *   - log: 记录被丢弃行的日志器，nil 时使用全局日志器
 *
 * Returns: *Parser - 解析器
 */
func New(log *zap.Logger) *Parser {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Parser{log: log.Named("parser")}
}

var defaultParser = &Parser{log: zap.NewNop()}

// Parse 使用默认解析器解析一行
func Parse(line string) (*models.ActionEvent, bool) {
	return defaultParser.Parse(line)
}

/**
 * Parse 解析一行
 *
 * Parameters:
 *   - line: 原始日志行
 *
 * Returns: *models.ActionEvent - 动作事件, bool - 是否为动作
 */
func (p *Parser) Parse(line string) (ev *models.ActionEvent, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Debug("解析日志行时发生 panic", zap.Any("panic", r), zap.String("line", line))
			ev, ok = nil, false
		}
	}()

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, false
	}
	if strings.HasPrefix(trimmed, "{") {
		return p.parseJSON(trimmed)
	}
	return p.parseText(line)
}

func (p *Parser) parseText(line string) (*models.ActionEvent, bool) {
	for _, marker := range systemMarkers {
		if strings.Contains(line, marker) {
			return nil, false
		}
	}

	kind, found := detectEventType(line)
	if !found {
		return nil, false
	}

	ev := &models.ActionEvent{EventType: kind}

	if m := timestampRe.FindStringSubmatch(line); m != nil {
		ev.Timestamp = m[1]
	}
	if m := controlTypeRe.FindStringSubmatch(line); m != nil {
		ev.ControlType = m[1]
	}
	if m := nameRe.FindStringSubmatch(line); m != nil {
		ev.ElementName = m[1]
	}
	if m := automationIDRe.FindStringSubmatch(line); m != nil {
		ev.AutomationID = m[1]
	}
	if m := classNameRe.FindStringSubmatch(line); m != nil {
		ev.ClassName = m[1]
	}
	if m := pathRe.FindStringSubmatch(line); m != nil {
		ev.Path = strings.TrimSpace(m[1])
	}
	if kind == models.EventInput {
		if m := valueDeltaRe.FindStringSubmatch(line); m != nil {
			ev.OldValue = m[1]
			ev.NewValue = m[2]
		}
	}

	return ev, true
}

// detectEventType 优先使用时间戳之后的第一个词；
// 该词不是事件标记时，按 焦点、点击、输入 的顺序在整行中查找
func detectEventType(line string) (models.EventType, bool) {
	if m := leadingWordRe.FindStringSubmatch(line); m != nil {
		for _, et := range eventTokens {
			for _, token := range et.tokens {
				if m[1] == token {
					return et.kind, true
				}
			}
		}
	}
	for _, et := range eventTokens {
		for _, token := range et.tokens {
			if strings.Contains(line, token) {
				return et.kind, true
			}
		}
	}
	return "", false
}

// jsonEvent JSON 行的结构，事件类型先按字符串读入再校验
type jsonEvent struct {
	Timestamp    string `json:"timestamp"`
	EventType    string `json:"event_type"`
	ControlType  string `json:"control_type"`
	ElementName  string `json:"element_name"`
	AutomationID string `json:"automation_id"`
	ClassName    string `json:"class_name"`
	Path         string `json:"path"`
	OldValue     string `json:"old_value"`
	NewValue     string `json:"new_value"`
}

func (p *Parser) parseJSON(line string) (*models.ActionEvent, bool) {
	var raw jsonEvent
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		p.log.Debug("丢弃无法解码的 JSON 行", zap.Error(err))
		return nil, false
	}

	kind, ok := models.ParseEventType(strings.ToUpper(strings.TrimSpace(raw.EventType)))
	if !ok {
		kind, ok = models.ParseEventType(strings.TrimSpace(raw.EventType))
	}
	if !ok {
		p.log.Debug("丢弃未知事件类型", zap.String("event_type", raw.EventType))
		return nil, false
	}

	ev := &models.ActionEvent{
		Timestamp:    raw.Timestamp,
		EventType:    kind,
		ControlType:  raw.ControlType,
		ElementName:  raw.ElementName,
		AutomationID: raw.AutomationID,
		ClassName:    raw.ClassName,
		Path:         raw.Path,
	}
	if kind == models.EventInput {
		ev.OldValue = raw.OldValue
		ev.NewValue = raw.NewValue
	}
	return ev, true
}

/**
 * Format 把动作事件渲染为文本行
 *
 * 输出的行可以被 Parse 还原，用于回放和测试
 *
 * Parameters:
 *   - ev: 动作事件
 *
 * Returns: string - 文本行
 */
func Format(ev *models.ActionEvent) string {
	var b strings.Builder
	if ev.Timestamp != "" {
		b.WriteString("[")
		b.WriteString(ev.Timestamp)
		b.WriteString("] ")
	}
	b.WriteString(string(ev.EventType))

	add := func(label, value string, quoted bool) {
		if value == "" {
			return
		}
		b.WriteString(" | ")
		b.WriteString(label)
		b.WriteString(": ")
		if quoted {
			b.WriteString("'")
			b.WriteString(value)
			b.WriteString("'")
		} else {
			b.WriteString(value)
		}
	}

	add("Type", ev.ControlType, false)
	add("Name", ev.ElementName, true)
	add("AutomationId", ev.AutomationID, true)
	add("ClassName", ev.ClassName, true)
	if ev.EventType == models.EventInput && (ev.OldValue != "" || ev.NewValue != "") {
		b.WriteString(" | Old: '")
		b.WriteString(ev.OldValue)
		b.WriteString("' → New: '")
		b.WriteString(ev.NewValue)
		b.WriteString("'")
	}
	add("Path", ev.Path, false)
	return b.String()
}
