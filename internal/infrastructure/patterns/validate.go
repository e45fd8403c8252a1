/**
 * Package patterns 模式库
 *
 * 负责模式定义的校验、JSON 持久化（保留键顺序）、写时复制快照和文件热加载。
 * 分析器通过 Snapshot 读取不可变快照，编辑操作构建新快照后原子替换。
 */

package patterns

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
)

var (
	// ErrEmptyKey 模式键为空
	ErrEmptyKey = errors.New("模式键不能为空")

	// ErrEmptyName 模式名称为空
	ErrEmptyName = errors.New("模式名称不能为空")

	// ErrNoCompletionTriggers 没有完成触发器
	ErrNoCompletionTriggers = errors.New("至少需要一个完成触发器")

	// ErrNoStartTriggers 声明了开始触发器但全部为空白
	ErrNoStartTriggers = errors.New("使用开始触发器时至少需要一个非空触发器")

	// ErrInvalidTimeout 超时为负数
	ErrInvalidTimeout = errors.New("超时必须为正数")

	// ErrDuplicateKey 模式键重复
	ErrDuplicateKey = errors.New("模式键已存在")

	// ErrPatternNotFound 模式不存在
	ErrPatternNotFound = errors.New("模式不存在")
)

/**
 * Normalize 规范化模式定义
 *
 * 裁剪键、名称、描述和所有触发器，丢弃空白触发器，超时为 0 时使用默认值。
 * 返回新对象，不修改输入。
 *
 * Parameters:
 *   - key: 模式键
 *   - p: 模式定义
 *
 * Returns: *models.OperationPattern - 规范化后的副本
 */
func Normalize(key string, p *models.OperationPattern) *models.OperationPattern {
	out := p.Clone()
	if out == nil {
		out = &models.OperationPattern{}
	}
	out.Key = strings.TrimSpace(key)
	out.Name = strings.TrimSpace(out.Name)
	out.Description = strings.TrimSpace(out.Description)
	out.StartTriggers = cleanTriggers(out.StartTriggers)
	out.MiddleTriggers = cleanTriggers(out.MiddleTriggers)
	out.CompletionTriggers = cleanTriggers(out.CompletionTriggers)
	if out.Timeout == 0 {
		out.Timeout = models.DefaultPatternTimeout
	}
	return out
}

func cleanTriggers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

/**
 * Validate 校验模式定义
 *
 * 规则：键和名称非空；至少一个完成触发器；声明了开始触发器时至少一个非空；超时不能为负。
 * 开始触发器为空的模式是合法的常驻模式。
 *
 * Parameters:
 *   - key: 模式键
 *   - p: 模式定义
 *
 * Returns: error - 包装了哨兵错误的校验错误
 */
func Validate(key string, p *models.OperationPattern) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("模式 %q: %w", key, ErrEmptyName)
	}
	if len(p.StartTriggers) > 0 && len(cleanTriggers(p.StartTriggers)) == 0 {
		return fmt.Errorf("模式 %q: %w", key, ErrNoStartTriggers)
	}
	if len(cleanTriggers(p.CompletionTriggers)) == 0 {
		return fmt.Errorf("模式 %q: %w", key, ErrNoCompletionTriggers)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("模式 %q: %w (%d)", key, ErrInvalidTimeout, p.Timeout)
	}
	return nil
}

/**
 * ValidateAll 校验一组模式，包括键是否重复
 *
 * Parameters:
 *   - list: 模式列表（使用 Key 字段）
 *
 * Returns: error - 所有校验错误合并后的错误
 */
func ValidateAll(list []*models.OperationPattern) error {
	var errs []error
	seen := make(map[string]bool, len(list))
	for _, p := range list {
		if p == nil {
			continue
		}
		key := strings.TrimSpace(p.Key)
		if err := Validate(key, p); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[key] {
			errs = append(errs, fmt.Errorf("模式 %q: %w", key, ErrDuplicateKey))
			continue
		}
		seen[key] = true
	}
	return errors.Join(errs...)
}
