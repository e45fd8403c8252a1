package matcher

import (
	"regexp"
	"testing"

	"github.com/chenyang-zz/opwatch/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMatch 测试触发器匹配规则
func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		trigger  string
		text     string
		expected bool
	}{
		{name: "整词命中", trigger: "Save", text: "Save document", expected: true},
		{name: "大小写不敏感", trigger: "save", text: "SAVE", expected: true},
		{name: "词内不命中", trigger: "Save", text: "Autosaved", expected: false},
		{name: "前缀不命中", trigger: "Line", text: "Lines", expected: false},
		{name: "标点作为边界", trigger: "Line", text: "Add Line:", expected: true},
		{name: "路径中命中", trigger: "Sales", text: "Panel → Tab 'Sales' → Button 'OK'", expected: true},
		{name: "西里尔整词", trigger: "Сохранить", text: "Кнопка Сохранить", expected: true},
		{name: "西里尔大小写", trigger: "провести", text: "ПРОВЕСТИ и закрыть", expected: true},
		{name: "西里尔词内不命中", trigger: "Записать", text: "Перезаписать", expected: false},
		{name: "下划线是词字符", trigger: "ok", text: "btn_ok", expected: false},
		{name: "数字是词字符", trigger: "Line", text: "Line2", expected: false},
		{name: "多词触发器", trigger: "Add Line", text: "Please Add Line now", expected: true},
		{name: "正则特殊字符按字面处理", trigger: "a.b", text: "axb", expected: false},
		{name: "特殊字符字面命中", trigger: "Total (USD)", text: "Total (USD)", expected: false},
		{name: "特殊字符前有词字符", trigger: "(USD", text: "x(USD", expected: true},
		{name: "星号不报错", trigger: "*", text: "a * b", expected: false},
		{name: "重叠候选", trigger: "ab ab", text: "xab ab ab", expected: true},
		{name: "前后空白被裁剪", trigger: "OK", text: "  OK  ", expected: true},
		{name: "空文本", trigger: "OK", text: "", expected: false},
		{name: "纯空白文本", trigger: "OK", text: "   ", expected: false},
		{name: "空触发器", trigger: "", text: "OK", expected: false},
		{name: "保留标记精确匹配", trigger: "CLICK", text: "CLICK", expected: true},
		{name: "保留标记裁剪后匹配", trigger: "CLICK", text: " CLICK ", expected: true},
		{name: "保留标记不做包含匹配", trigger: "CLICK", text: "CLICK here", expected: false},
		{name: "保留标记大小写敏感", trigger: "CLICK", text: "click", expected: false},
		{name: "俄文标记与英文同义", trigger: "КЛИК", text: "CLICK", expected: true},
		{name: "英文标记与俄文同义", trigger: "INPUT", text: "ВВОД", expected: true},
		{name: "不同事件类型", trigger: "FOCUS", text: "CLICK", expected: false},
		{name: "小写标记不是保留字", trigger: "click", text: "Double click me", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Match(tt.trigger, tt.text))
		})
	}
}

// TestMatchAny 测试多字段匹配
func TestMatchAny(t *testing.T) {
	assert.True(t, MatchAny("Sales", "OK", "CLICK", "Tab 'Sales'"))
	assert.True(t, MatchAny("CLICK", "OK", "CLICK", ""))
	assert.False(t, MatchAny("Sales", "OK", "CLICK", ""))
	assert.False(t, MatchAny("Sales"))
}

// TestFirstMatch 测试按顺序返回第一个命中的触发器
func TestFirstMatch(t *testing.T) {
	m := Default()

	got, ok := m.FirstMatch([]string{"Post", "Line", "Add"}, "Add Line", "CLICK", "")
	require.True(t, ok)
	assert.Equal(t, "Line", got)

	_, ok = m.FirstMatch([]string{"Post"}, "Add Line", "CLICK", "")
	assert.False(t, ok)

	_, ok = m.FirstMatch(nil, "anything")
	assert.False(t, ok)
}

// TestMatcher_Cache 测试编译结果被缓存
func TestMatcher_Cache(t *testing.T) {
	c := cache.NewMemoryCache[*regexp.Regexp](8, 0)
	defer c.Stop()
	m := New(c)

	assert.True(t, m.Match("Save", "Save"))
	assert.True(t, m.Match("Save", "Save all"))
	assert.True(t, m.Match("CLICK", "CLICK"), "保留标记不经过缓存")

	snap := c.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Sets)
	assert.Equal(t, int64(1), snap.Hits)
	assert.Equal(t, 1, c.Count())
}

// TestMatcher_StoppedCache 测试缓存不可用时不命中也不 panic
func TestMatcher_StoppedCache(t *testing.T) {
	c := cache.NewMemoryCache[*regexp.Regexp](8, 0)
	c.Stop()
	m := New(c)

	assert.NotPanics(t, func() {
		assert.False(t, m.Match("Save", "Save"))
	})
	assert.True(t, m.Match("FOCUS", "FOCUS"))
}
