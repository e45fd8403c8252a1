package parser

import (
	"testing"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestParse_Text 测试文本行解析
func TestParse_Text(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected *models.ActionEvent
	}{
		{
			name: "俄文点击完整字段",
			line: "[10:00:01.123] КЛИК | Type: ButtonControl | Name: 'Записать' | AutomationId: 'btnSave' | ClassName: 'Button' | Путь: Форма → Кнопка 'Записать'",
			expected: &models.ActionEvent{
				Timestamp:    "10:00:01.123",
				EventType:    models.EventClick,
				ControlType:  "ButtonControl",
				ElementName:  "Записать",
				AutomationID: "btnSave",
				ClassName:    "Button",
				Path:         "Форма → Кнопка 'Записать'",
			},
		},
		{
			name: "俄文输入带值变化",
			line: "[10:00:02.000] ВВОД | Type: EditControl | Name: 'Сумма' | Было: '' → Стало: '100'",
			expected: &models.ActionEvent{
				Timestamp:   "10:00:02.000",
				EventType:   models.EventInput,
				ControlType: "EditControl",
				ElementName: "Сумма",
				OldValue:    "",
				NewValue:    "100",
			},
		},
		{
			name: "英文焦点",
			line: "[09:15:00.001] FOCUS | Name: 'New' | Path: Main → Button 'New'   ",
			expected: &models.ActionEvent{
				Timestamp:   "09:15:00.001",
				EventType:   models.EventFocus,
				ElementName: "New",
				Path:        "Main → Button 'New'",
			},
		},
		{
			name: "英文输入",
			line: "[09:15:00.001] INPUT | Name: 'Qty' | Old: '1' → New: '2'",
			expected: &models.ActionEvent{
				Timestamp:   "09:15:00.001",
				EventType:   models.EventInput,
				ElementName: "Qty",
				OldValue:    "1",
				NewValue:    "2",
			},
		},
		{
			name: "无时间戳",
			line: "CLICK | Name: 'OK'",
			expected: &models.ActionEvent{
				EventType:   models.EventClick,
				ElementName: "OK",
			},
		},
		{
			name: "ClassName 在 Name 之前",
			line: "[10:00:00.000] CLICK | ClassName: 'Btn' | Name: 'OK'",
			expected: &models.ActionEvent{
				Timestamp:   "10:00:00.000",
				EventType:   models.EventClick,
				ElementName: "OK",
				ClassName:   "Btn",
			},
		},
		{
			name: "点击行名称含英文焦点标记",
			line: "[10:00:00.000] КЛИК | Name: 'FOCUS group'",
			expected: &models.ActionEvent{
				Timestamp:   "10:00:00.000",
				EventType:   models.EventClick,
				ElementName: "FOCUS group",
			},
		},
		{
			name: "事件词前有图标",
			line: "[10:00:00.000] 🖱 CLICK | Name: 'OK'",
			expected: &models.ActionEvent{
				Timestamp:   "10:00:00.000",
				EventType:   models.EventClick,
				ElementName: "OK",
			},
		},
		{
			name: "首词不是事件标记时整行查找",
			line: "[10:00:00.000] UI INPUT | Name: 'Qty'",
			expected: &models.ActionEvent{
				Timestamp:   "10:00:00.000",
				EventType:   models.EventInput,
				ElementName: "Qty",
			},
		},
		{
			name: "焦点行名称含点击标记",
			line: "[10:00:00.000] ФОКУС | Name: 'КЛИК'",
			expected: &models.ActionEvent{
				Timestamp:   "10:00:00.000",
				EventType:   models.EventFocus,
				ElementName: "КЛИК",
			},
		},
		{
			name: "非输入事件忽略值变化",
			line: "[10:00:00.000] CLICK | Name: 'X' | Old: 'a' → New: 'b'",
			expected: &models.ActionEvent{
				Timestamp:   "10:00:00.000",
				EventType:   models.EventClick,
				ElementName: "X",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Parse(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.expected, ev)
		})
	}
}

// TestParse_NotAnAction 测试非动作行
func TestParse_NotAnAction(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "空行", line: ""},
		{name: "空白行", line: "   "},
		{name: "俄文信息标记", line: "[ИНФО] Найдено окно: 1С КЛИК"},
		{name: "俄文错误标记", line: "[ОШИБКА] Окно не найдено"},
		{name: "英文开始标记", line: "[START] monitoring CLICK events"},
		{name: "导出标记", line: "[EXPORT] saved"},
		{name: "缺少事件类型", line: "[10:00:00.000] Name: 'OK'"},
		{name: "小写事件类型", line: "[10:00:00.000] click Name: 'OK'"},
		{name: "非法 JSON", line: `{"event_type": "CLICK"`},
		{name: "JSON 未知事件类型", line: `{"event_type": "SCROLL"}`},
		{name: "JSON 缺少事件类型", line: `{"element_name": "OK"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Parse(tt.line)
			assert.False(t, ok)
			assert.Nil(t, ev)
		})
	}
}

// TestParse_JSON 测试结构化输入
func TestParse_JSON(t *testing.T) {
	p := New(zap.NewNop())

	ev, ok := p.Parse(`{"timestamp":"10:00:00.100","event_type":"input","element_name":"Amount","old_value":"","new_value":"5","path":"Form"}`)
	require.True(t, ok)
	assert.Equal(t, models.EventInput, ev.EventType)
	assert.Equal(t, "Amount", ev.ElementName)
	assert.Equal(t, "5", ev.NewValue)
	assert.Equal(t, "Form", ev.Path)

	ev, ok = p.Parse(`  {"event_type":"КЛИК","element_name":"Провести","new_value":"ignored"}`)
	require.True(t, ok)
	assert.Equal(t, models.EventClick, ev.EventType)
	assert.Empty(t, ev.NewValue, "非输入事件不保留值")
}

// TestFormat 测试渲染结果可以被还原
func TestFormat(t *testing.T) {
	events := []*models.ActionEvent{
		{Timestamp: "10:00:00.000", EventType: models.EventClick, ControlType: "ButtonControl", ElementName: "Save", AutomationID: "b1", ClassName: "Btn", Path: "Form → Button 'Save'"},
		{Timestamp: "10:00:01.500", EventType: models.EventInput, ElementName: "Qty", OldValue: "1", NewValue: "3"},
		{EventType: models.EventFocus, ElementName: "Grid"},
	}

	for _, ev := range events {
		line := Format(ev)
		got, ok := Parse(line)
		require.True(t, ok, line)
		assert.Equal(t, ev, got, line)
	}
}
