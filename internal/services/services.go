// Package services 提供业务流程编排
//
// Service 层负责协调多个领域模块，实现应用级用例。
// 它不包含核心业务逻辑（在 Domain 层），而是编排和协调。
//
// 职责：
//   - 模式库编辑（列出、查看、校验、新增、删除），变更发布到事件总线
//   - 动作日志会话管理（列出、删除、统计）
//   - 与 App 层和命令行交互

package services
