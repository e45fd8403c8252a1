package patterns

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
)

/**
 * Decode 解码模式文件
 *
 * 文件是以模式键为键的 JSON 对象，返回的列表保持文件中的键顺序。
 * 重复的键返回 ErrDuplicateKey。
 *
 * Parameters:
 *   - data: 文件内容
 *
 * Returns: []*models.OperationPattern - 按文件顺序排列的模式, error - 解码错误
 */
func Decode(data []byte) ([]*models.OperationPattern, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("读取模式文件失败: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("模式文件必须是 JSON 对象")
	}

	var list []*models.OperationPattern
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("读取模式键失败: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("模式键必须是字符串")
		}
		if seen[key] {
			return nil, fmt.Errorf("模式 %q: %w", key, ErrDuplicateKey)
		}
		seen[key] = true

		var p models.OperationPattern
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("解码模式 %q 失败: %w", key, err)
		}
		p.Key = key
		list = append(list, &p)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("模式文件不完整: %w", err)
	}
	return list, nil
}

/**
 * Encode 编码模式库
 *
 * 按快照顺序输出，两空格缩进，非 ASCII 字符原样输出，空触发器列表输出为 []
 *
 * Parameters:
 *   - set: 模式快照
 *
 * Returns: []byte - JSON 内容, error - 编码错误
 */
func Encode(set *models.PatternSet) ([]byte, error) {
	var buf bytes.Buffer
	all := set.All()
	if len(all) == 0 {
		return []byte("{}\n"), nil
	}

	buf.WriteString("{\n")
	for i, p := range all {
		key, err := marshalNoEscape(p.Key, "")
		if err != nil {
			return nil, fmt.Errorf("编码模式键失败: %w", err)
		}
		body, err := marshalNoEscape(persisted(p), "  ")
		if err != nil {
			return nil, fmt.Errorf("编码模式 %q 失败: %w", p.Key, err)
		}

		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(body)
		if i < len(all)-1 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// persisted 持久化前把 nil 切片替换为空切片
func persisted(p *models.OperationPattern) *models.OperationPattern {
	c := p.Clone()
	if c.StartTriggers == nil {
		c.StartTriggers = []string{}
	}
	if c.MiddleTriggers == nil {
		c.MiddleTriggers = []string{}
	}
	if c.CompletionTriggers == nil {
		c.CompletionTriggers = []string{}
	}
	return c
}

func marshalNoEscape(v any, prefix string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
