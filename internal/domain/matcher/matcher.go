/**
 * Package matcher 实现触发器匹配
 *
 * 触发器与文本的匹配规则：
 * - 触发器是事件类型标记（FOCUS/CLICK/INPUT 或对应的俄文写法）时，文本裁剪后必须是同一种事件类型
 * - 否则按整词、大小写不敏感的方式查找，词边界按 Unicode 字母、数字和下划线判定
 */

package matcher

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/internal/infrastructure/cache"
	"github.com/chenyang-zz/opwatch/pkg/logger"
	"go.uber.org/zap"
)

// DefaultCacheSize 默认缓存的表达式数量
const DefaultCacheSize = 1024

/**
 * Matcher 触发器匹配器
 *
 * 无状态（缓存除外），并发安全
 */
type Matcher struct {
	exprs cache.Cache[*regexp.Regexp]
}

/**
 * New 创建匹配器
 *
 * Parameters:
 *   - exprs: 编译结果缓存，nil 时使用默认大小的内存缓存
 *
 * Returns: *Matcher - 匹配器
 */
func New(exprs cache.Cache[*regexp.Regexp]) *Matcher {
	if exprs == nil {
		exprs = cache.NewMemoryCache[*regexp.Regexp](DefaultCacheSize, 0)
	}
	return &Matcher{exprs: exprs}
}

var defaultMatcher = New(nil)

// Default 返回包级共享的匹配器
func Default() *Matcher {
	return defaultMatcher
}

// Match 使用共享匹配器判断触发器是否命中文本
func Match(trigger, text string) bool {
	return defaultMatcher.Match(trigger, text)
}

// MatchAny 使用共享匹配器判断触发器是否命中任一字段
func MatchAny(trigger string, fields ...string) bool {
	return defaultMatcher.MatchAny(trigger, fields...)
}

/**
 * Match 判断触发器是否命中文本
 *
 * 空文本、空触发器永远不命中；不会 panic
 *
 * Parameters:
 *   - trigger: 触发器
 *   - text: 候选文本
 *
 * Returns: bool - 是否命中
 */
func (m *Matcher) Match(trigger, text string) bool {
	if text == "" || trigger == "" {
		return false
	}
	text = strings.TrimSpace(text)

	if kind, reserved := models.ParseEventType(trigger); reserved {
		got, ok := models.ParseEventType(text)
		return ok && got == kind
	}

	if text == "" {
		return false
	}

	re, err := m.exprs.GetOrCompute(trigger, func() (*regexp.Regexp, error) {
		return regexp.Compile("(?i)" + regexp.QuoteMeta(trigger))
	})
	if err != nil {
		logger.Debug("触发器表达式不可用", zap.String("trigger", trigger), zap.Error(err))
		return false
	}

	return containsWord(re, text)
}

// MatchAny 触发器是否命中任一字段
func (m *Matcher) MatchAny(trigger string, fields ...string) bool {
	for _, f := range fields {
		if m.Match(trigger, f) {
			return true
		}
	}
	return false
}

/**
 * FirstMatch 返回第一个命中任一字段的触发器
 *
 * Parameters:
 *   - triggers: 按顺序检查的触发器
 *   - fields: 候选字段
 *
 * Returns: string - 命中的触发器, bool - 是否命中
 */
func (m *Matcher) FirstMatch(triggers []string, fields ...string) (string, bool) {
	for _, t := range triggers {
		if m.MatchAny(t, fields...) {
			return t, true
		}
	}
	return "", false
}

// containsWord 逐个位置查找，两端都必须落在词边界上（允许重叠候选）
func containsWord(re *regexp.Regexp, text string) bool {
	offset := 0
	for offset <= len(text) {
		loc := re.FindStringIndex(text[offset:])
		if loc == nil {
			return false
		}
		start, end := offset+loc[0], offset+loc[1]
		if start != end && isBoundary(text, start) && isBoundary(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			return false
		}
		offset = start + size
	}
	return false
}

// isBoundary 位置 i 两侧一个是词字符、另一个不是（文本两端视为非词字符）
func isBoundary(text string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:i])
		before = isWordRune(r)
	}
	if i < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i:])
		after = isWordRune(r)
	}
	return before != after
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
