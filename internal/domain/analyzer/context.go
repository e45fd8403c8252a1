package analyzer

import "github.com/chenyang-zz/opwatch/internal/domain/models"

/**
 * ExtractContext 计算操作上下文
 *
 * 统计带有元素名和新值的输入动作数量，存放在 models.ContextFieldsFilled 下；
 * 没有符合条件的动作时返回空映射
 *
 * Parameters:
 *   - actions: 操作的动作列表
 *
 * Returns: map[string]int - 上下文
 */
func ExtractContext(actions []models.ActionEvent) map[string]int {
	ctx := make(map[string]int)
	filled := 0
	for i := range actions {
		if actions[i].IsFilledInput() {
			filled++
		}
	}
	if filled > 0 {
		ctx[models.ContextFieldsFilled] = filled
	}
	return ctx
}
