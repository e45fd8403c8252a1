package services

import (
	"bytes"
	"fmt"
	"os"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/internal/infrastructure/patterns"
	"github.com/chenyang-zz/opwatch/pkg/events"
	"github.com/chenyang-zz/opwatch/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// PatternService 模式库编辑服务
//
// 包装模式库的编辑操作，每次模式库变更都会作为 patterns 事件发布。
type PatternService struct {
	// store 模式库
	store *patterns.Store

	// eventBus 事件总线，nil 时不发布
	eventBus *events.EventBus
}

// NewPatternService 创建模式库编辑服务
//
// Parameters:
//   - store: 模式库
//   - eventBus: 事件总线实例（可选）
//
// Returns: *PatternService - 服务实例
func NewPatternService(store *patterns.Store, eventBus *events.EventBus) *PatternService {
	svc := &PatternService{store: store, eventBus: eventBus}
	store.OnChange(svc.publishChange)
	return svc
}

// List 按模式库顺序返回所有模式的副本
func (s *PatternService) List() []*models.OperationPattern {
	return s.store.Snapshot().All()
}

// Version 当前模式库版本
func (s *PatternService) Version() uint64 {
	return s.store.Snapshot().Version()
}

// Describe 生成模式的测试说明文本
//
// Parameters:
//   - key: 模式键
//
// Returns: string - 说明文本, error - 模式不存在时返回错误
func (s *PatternService) Describe(key string) (string, error) {
	p, ok := s.store.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", patterns.ErrPatternNotFound, key)
	}
	return patterns.Describe(p), nil
}

// Add 新增模式，键已存在时返回 ErrDuplicateKey
func (s *PatternService) Add(key string, p *models.OperationPattern) error {
	if err := s.store.Add(key, p); err != nil {
		logger.Warn("新增模式失败", zap.String("key", key), zap.Error(err))
		return err
	}
	logger.Info("模式已新增", zap.String("key", key))
	return nil
}

// Update 新增或替换模式
func (s *PatternService) Update(key string, p *models.OperationPattern) error {
	if err := s.store.Put(key, p); err != nil {
		logger.Warn("更新模式失败", zap.String("key", key), zap.Error(err))
		return err
	}
	logger.Info("模式已更新", zap.String("key", key))
	return nil
}

// Delete 删除模式
func (s *PatternService) Delete(key string) error {
	if err := s.store.Delete(key); err != nil {
		return err
	}
	logger.Info("模式已删除", zap.String("key", key))
	return nil
}

// Save 把模式库写回文件
func (s *PatternService) Save() error {
	if err := s.store.Save(""); err != nil {
		return fmt.Errorf("保存模式库失败: %w", err)
	}
	return nil
}

// ValidateFile 校验模式文件但不加载
//
// Parameters:
//   - path: 模式文件路径
//
// Returns: int - 模式数量, error - 读取、解码或校验错误
func (s *PatternService) ValidateFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("读取模式文件失败: %w", err)
	}
	list, err := patterns.Decode(data)
	if err != nil {
		return 0, err
	}
	if err := patterns.ValidateAll(list); err != nil {
		return len(list), err
	}
	return len(list), nil
}

// ParseDefinition 解析 YAML 格式的单个模式定义
//
// 字段与模式文件相同（name、triggers、middle_triggers、completion_triggers、timeout、description）
//
// Parameters:
//   - key: 模式键
//   - data: YAML 内容
//
// Returns: *models.OperationPattern - 已校验的模式, error - 解析或校验错误
func ParseDefinition(key string, data []byte) (*models.OperationPattern, error) {
	var p models.OperationPattern
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("解析模式定义失败: %w", err)
	}
	if err := patterns.Validate(key, &p); err != nil {
		return nil, err
	}
	return patterns.Normalize(key, &p), nil
}

// publishChange 在模式库写入者的 goroutine 中调用
func (s *PatternService) publishChange(set *models.PatternSet) {
	if s.eventBus == nil {
		return
	}
	event := events.NewEvent(events.EventTypePatterns, map[string]interface{}{
		"version": set.Version(),
		"keys":    set.Keys(),
	})
	if err := s.eventBus.Publish(string(events.EventTypePatterns), *event); err != nil {
		logger.Debug("发布模式库事件失败", zap.Error(err))
	}
}
