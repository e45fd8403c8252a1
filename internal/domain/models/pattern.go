package models

import "time"

// DefaultPatternTimeout 模式未声明超时时使用的秒数
const DefaultPatternTimeout = 30

/**
 * OperationPattern 业务操作模式
 *
 * 定义一种业务操作的开始、中间、完成触发器以及超时时间。
 * 在一个分类周期内不可变，由模式库持有。
 */
type OperationPattern struct {
	// Key 模式唯一标识（持久化时作为 JSON 对象的键）
	Key string `json:"-" yaml:"-"`

	// Name 显示名称
	Name string `json:"name" yaml:"name"`

	// StartTriggers 开始触发器；为空表示"常驻"模式，每一步都是开始候选
	StartTriggers []string `json:"triggers" yaml:"triggers"`

	// MiddleTriggers 中间触发器；为空表示不要求中间进展
	MiddleTriggers []string `json:"middle_triggers" yaml:"middle_triggers"`

	// CompletionTriggers 完成触发器，必须非空（定义时校验）
	CompletionTriggers []string `json:"completion_triggers" yaml:"completion_triggers"`

	// Timeout 无动作多少秒后放弃，0 表示默认 30 秒
	Timeout int `json:"timeout" yaml:"timeout"`

	// Description 描述，仅用于展示
	Description string `json:"description" yaml:"description"`
}

// IsAmbient 是否为常驻模式（没有开始触发器）
func (p *OperationPattern) IsAmbient() bool {
	return len(p.StartTriggers) == 0
}

// HasMiddleTriggers 是否定义了中间触发器
func (p *OperationPattern) HasMiddleTriggers() bool {
	return len(p.MiddleTriggers) > 0
}

/**
 * TimeoutDuration 返回超时时间
 *
 * Parameters:
 *   - fallback: 模式未声明超时时使用的值
 *
 * Returns: time.Duration - 超时时间
 */
func (p *OperationPattern) TimeoutDuration(fallback time.Duration) time.Duration {
	if p == nil || p.Timeout <= 0 {
		return fallback
	}
	return time.Duration(p.Timeout) * time.Second
}

// Clone 深拷贝
func (p *OperationPattern) Clone() *OperationPattern {
	if p == nil {
		return nil
	}
	c := *p
	c.StartTriggers = cloneStrings(p.StartTriggers)
	c.MiddleTriggers = cloneStrings(p.MiddleTriggers)
	c.CompletionTriggers = cloneStrings(p.CompletionTriggers)
	return &c
}

/**
 * PatternSet 模式库的不可变快照
 *
 * 保留键的插入顺序，开始检测按此顺序遍历候选。
 * 修改模式库时构建新的快照（写时复制），正在进行的分析步骤不受影响。
 */
type PatternSet struct {
	version uint64
	keys    []string
	byKey   map[string]*OperationPattern
}

/**
 * NewPatternSet 构建快照
 *
 * 重复的键保留首次出现的位置、最后一次出现的内容
 *
 * Parameters:
 *   - version: 快照版本号
 *   - patterns: 按顺序排列的模式（使用 Key 字段作为键）
 *
 * Returns: *PatternSet - 快照
 */
func NewPatternSet(version uint64, patterns []*OperationPattern) *PatternSet {
	set := &PatternSet{
		version: version,
		keys:    make([]string, 0, len(patterns)),
		byKey:   make(map[string]*OperationPattern, len(patterns)),
	}
	for _, p := range patterns {
		if p == nil {
			continue
		}
		if _, exists := set.byKey[p.Key]; !exists {
			set.keys = append(set.keys, p.Key)
		}
		set.byKey[p.Key] = p.Clone()
	}
	return set
}

// Version 快照版本号
func (s *PatternSet) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.version
}

// Get 按键查找模式
func (s *PatternSet) Get(key string) (*OperationPattern, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.byKey[key]
	return p, ok
}

// Keys 按顺序返回所有键
func (s *PatternSet) Keys() []string {
	if s == nil {
		return nil
	}
	return cloneStrings(s.keys)
}

// All 按顺序返回所有模式
func (s *PatternSet) All() []*OperationPattern {
	if s == nil {
		return nil
	}
	out := make([]*OperationPattern, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.byKey[k])
	}
	return out
}

// Len 模式数量
func (s *PatternSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
