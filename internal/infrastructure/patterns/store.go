package patterns

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/pkg/logger"
	"go.uber.org/zap"
)

/**
 * Store 模式库
 *
 * 读取无锁：Snapshot 返回当前不可变快照；
 * 写入串行：每次修改构建新快照并原子替换，版本号递增。
 */
type Store struct {
	// current 当前快照
	current atomic.Pointer[models.PatternSet]

	// mu 串行化写入
	mu sync.Mutex

	// path 模式文件路径（可为空）
	path string

	// autoSave 修改后是否立即写回文件
	autoSave bool

	// lastData 最近一次读取或写入的文件内容，用于忽略自身写入触发的文件事件
	lastData []byte

	listeners []func(*models.PatternSet)
	log       *zap.Logger
}

/**
 * Option 模式库配置选项
 */
type Option func(*Store)

// WithPath 设置模式文件路径
func WithPath(path string) Option {
	return func(s *Store) {
		s.path = path
	}
}

// WithAutoSave 修改后自动写回文件
func WithAutoSave(enabled bool) Option {
	return func(s *Store) {
		s.autoSave = enabled
	}
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

/**
 * NewStore 创建空模式库
 *
 * Parameters:
 *   - opts: 配置选项
 *
 * Returns: *Store - 模式库实例
 */
func NewStore(opts ...Option) *Store {
	s := &Store{log: logger.GetLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("patterns")
	s.current.Store(models.NewPatternSet(0, nil))
	return s
}

/**
 * Open 创建模式库并从文件加载
 *
 * 文件不存在时返回空模式库
 *
 * Parameters:
 *   - path: 模式文件路径
 *   - opts: 配置选项
 *
 * Returns: *Store - 模式库实例, error - 加载错误
 */
func Open(path string, opts ...Option) (*Store, error) {
	s := NewStore(append([]Option{WithPath(path)}, opts...)...)
	if err := s.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Info("模式文件不存在，使用空模式库", zap.String("path", path))
			return s, nil
		}
		return nil, err
	}
	return s, nil
}

// Path 模式文件路径
func (s *Store) Path() string {
	return s.path
}

// Snapshot 返回当前快照
func (s *Store) Snapshot() *models.PatternSet {
	return s.current.Load()
}

// Get 按键查找模式
func (s *Store) Get(key string) (*models.OperationPattern, bool) {
	return s.Snapshot().Get(key)
}

// OnChange 注册快照变化回调（在写入方的 goroutine 中调用）
func (s *Store) OnChange(fn func(*models.PatternSet)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

/**
 * Put 新增或更新模式
 *
 * 已存在的键保持原位置，新键追加到末尾
 *
 * Parameters:
 *   - key: 模式键
 *   - p: 模式定义
 *
 * Returns: error - 校验或保存错误
 */
func (s *Store) Put(key string, p *models.OperationPattern) error {
	return s.upsert(key, p, false)
}

// Add 新增模式，键已存在时返回 ErrDuplicateKey
func (s *Store) Add(key string, p *models.OperationPattern) error {
	return s.upsert(key, p, true)
}

func (s *Store) upsert(key string, p *models.OperationPattern, mustBeNew bool) error {
	if err := Validate(key, p); err != nil {
		return err
	}
	normalized := Normalize(key, p)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if _, exists := cur.Get(normalized.Key); exists && mustBeNew {
		return fmt.Errorf("模式 %q: %w", normalized.Key, ErrDuplicateKey)
	}

	list := cur.All()
	replaced := false
	for i, existing := range list {
		if existing.Key == normalized.Key {
			list[i] = normalized
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, normalized)
	}

	return s.commitLocked(list)
}

/**
 * Delete 删除模式
 *
 * Parameters:
 *   - key: 模式键
 *
 * Returns: error - 模式不存在时返回 ErrPatternNotFound
 */
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if _, exists := cur.Get(key); !exists {
		return fmt.Errorf("模式 %q: %w", key, ErrPatternNotFound)
	}

	all := cur.All()
	list := make([]*models.OperationPattern, 0, len(all))
	for _, p := range all {
		if p.Key != key {
			list = append(list, p)
		}
	}
	return s.commitLocked(list)
}

/**
 * Replace 整体替换模式库
 *
 * Parameters:
 *   - list: 按顺序排列的模式（使用 Key 字段）
 *
 * Returns: error - 任一模式校验失败时不做任何修改
 */
func (s *Store) Replace(list []*models.OperationPattern) error {
	if err := ValidateAll(list); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(normalizeAll(list))
}

func normalizeAll(list []*models.OperationPattern) []*models.OperationPattern {
	out := make([]*models.OperationPattern, 0, len(list))
	for _, p := range list {
		if p != nil {
			out = append(out, Normalize(p.Key, p))
		}
	}
	return out
}

// commitLocked 构建新快照；开启自动保存时先写文件，写入失败则不替换快照
func (s *Store) commitLocked(list []*models.OperationPattern) error {
	next := models.NewPatternSet(s.current.Load().Version()+1, list)

	if s.autoSave && s.path != "" {
		data, err := Encode(next)
		if err != nil {
			return err
		}
		if err := writeFileAtomic(s.path, data); err != nil {
			return err
		}
		s.lastData = data
	}

	s.publishLocked(next)
	return nil
}

func (s *Store) publishLocked(next *models.PatternSet) {
	s.current.Store(next)
	s.log.Debug("模式库已更新",
		zap.Uint64("version", next.Version()),
		zap.Int("count", next.Len()))
	for _, fn := range s.listeners {
		fn(next)
	}
}

/**
 * Load 从文件加载模式库
 *
 * 文件中任一模式不合法时保持当前快照不变
 *
 * Parameters:
 *   - path: 模式文件路径
 *
 * Returns: error - 读取、解码或校验错误
 */
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取模式文件失败: %w", err)
	}
	return s.loadData(data, false)
}

// loadData 解码并替换快照；skipUnchanged 为 true 时内容未变化则忽略
func (s *Store) loadData(data []byte, skipUnchanged bool) error {
	list, err := Decode(data)
	if err != nil {
		return err
	}
	if err := ValidateAll(list); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if skipUnchanged && bytes.Equal(data, s.lastData) {
		return nil
	}
	s.lastData = data

	next := models.NewPatternSet(s.current.Load().Version()+1, normalizeAll(list))
	s.publishLocked(next)
	s.log.Info("模式库已加载", zap.Int("count", next.Len()), zap.Uint64("version", next.Version()))
	return nil
}

/**
 * Save 保存模式库到文件
 *
 * 先写临时文件再重命名，避免读者看到写了一半的文件
 *
 * Parameters:
 *   - path: 目标路径，为空时使用 WithPath 设置的路径
 *
 * Returns: error - 编码或写入错误
 */
func (s *Store) Save(path string) error {
	if path == "" {
		path = s.path
	}
	if path == "" {
		return fmt.Errorf("未设置模式文件路径")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := Encode(s.current.Load())
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	if path == s.path {
		s.lastData = data
	}
	s.log.Info("模式库已保存", zap.String("path", path))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建模式目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("替换模式文件失败: %w", err)
	}
	return nil
}

/**
 * Describe 渲染模式说明
 *
 * Parameters:
 *   - p: 模式定义
 *
 * Returns: string - 多行说明文本
 */
func Describe(p *models.OperationPattern) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Operation: %s\n\n", p.Name)

	if len(p.StartTriggers) > 0 {
		fmt.Fprintf(&b, "Start triggers (%d):\n", len(p.StartTriggers))
		b.WriteString("  • " + strings.Join(p.StartTriggers, "\n  • ") + "\n\n")
	} else {
		b.WriteString("Start triggers: not used\n")
		b.WriteString("  ℹ️ The operation starts as soon as monitoring begins\n\n")
	}

	if len(p.MiddleTriggers) > 0 {
		fmt.Fprintf(&b, "Middle triggers (%d):\n", len(p.MiddleTriggers))
		b.WriteString("  • " + strings.Join(p.MiddleTriggers, "\n  • "))
		b.WriteString("\n  ℹ️ At least one match is enough\n\n")
	}

	fmt.Fprintf(&b, "Completion triggers (%d):\n", len(p.CompletionTriggers))
	b.WriteString("  • " + strings.Join(p.CompletionTriggers, "\n  • ") + "\n\n")

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = models.DefaultPatternTimeout
	}
	fmt.Fprintf(&b, "Timeout: %d seconds\n", timeout)

	if p.Description != "" {
		fmt.Fprintf(&b, "\nDescription:\n%s\n", p.Description)
	}
	return b.String()
}
