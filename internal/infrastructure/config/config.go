/**
 * Package config 提供配置管理功能
 *
 * 负责加载和管理应用的配置信息
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chenyang-zz/opwatch/pkg/logger"
	"gopkg.in/yaml.v3"
)

/**
 * Config 应用配置结构体
 *
 * 包含应用的所有可配置参数
 */
type Config struct {
	// Application 应用基本配置
	Application ApplicationConfig `yaml:"application"`

	// Analyzer 操作分析器配置
	Analyzer AnalyzerConfig `yaml:"analyzer"`

	// Patterns 模式库配置
	Patterns PatternsConfig `yaml:"patterns"`

	// Monitor 监控配置
	Monitor MonitorConfig `yaml:"monitor"`

	// Storage 存储配置
	Storage StorageConfig `yaml:"storage"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging 日志配置
	Logging LoggingConfig `yaml:"logging"`
}

/**
 * ApplicationConfig 应用基本配置
 */
type ApplicationConfig struct {
	/** 应用名称 */
	Name string `yaml:"name"`

	/** 应用版本 */
	Version string `yaml:"version"`

	/** 是否启用调试模式 */
	Debug bool `yaml:"debug"`
}

/**
 * AnalyzerConfig 操作分析器配置
 */
type AnalyzerConfig struct {
	/** 连续多少个无关动作后取消当前操作 */
	MaxUnrelatedActions int `yaml:"max_unrelated_actions"`

	/** 最近动作缓冲区容量 */
	RecentCapacity int `yaml:"recent_capacity"`

	/** 模式未声明超时时使用的超时，如 30s */
	DefaultTimeout string `yaml:"default_timeout"`
}

/**
 * PatternsConfig 模式库配置
 */
type PatternsConfig struct {
	/** 模式文件路径 */
	Path string `yaml:"path"`

	/** 是否监听文件变化并热加载 */
	Watch bool `yaml:"watch"`

	/** 编辑后是否自动保存 */
	AutoSave bool `yaml:"auto_save"`
}

/**
 * MonitorConfig 监控配置
 */
type MonitorConfig struct {
	/** 监控的日志文件 */
	File string `yaml:"file"`

	/** 是否从文件开头读取 */
	FromBeginning bool `yaml:"from_beginning"`

	/** 文件系统事件之外的兜底轮询间隔 */
	PollInterval string `yaml:"poll_interval"`

	/** 通知事件缓冲区大小 */
	EventBufferSize int `yaml:"event_buffer_size"`
}

/**
 * StorageConfig 存储配置
 */
type StorageConfig struct {
	/** SQLite 动作日志配置 */
	SQLite SQLiteConfig `yaml:"sqlite"`
}

/**
 * SQLiteConfig SQLite 配置
 */
type SQLiteConfig struct {
	/** 是否记录动作日志 */
	Enabled bool `yaml:"enabled"`

	/** 数据库文件路径 */
	Path string `yaml:"path"`

	/** 最大打开连接数 */
	MaxOpenConns int `yaml:"max_open_conns"`

	/** 最大空闲连接数 */
	MaxIdleConns int `yaml:"max_idle_conns"`

	/** 连接最大生命周期 */
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`

	/** 批量写入配置 */
	Batch BatchConfig `yaml:"batch"`
}

/**
 * BatchConfig 批量写入配置
 */
type BatchConfig struct {
	/** 批量大小 */
	Size int `yaml:"size"`

	/** 刷新间隔 */
	FlushInterval string `yaml:"flush_interval"`

	/** 通道容量 */
	Buffer int `yaml:"buffer"`
}

/**
 * MetricsConfig 指标配置
 */
type MetricsConfig struct {
	/** 是否启用 Prometheus 指标 */
	Enabled bool `yaml:"enabled"`

	/** 指标命名空间 */
	Namespace string `yaml:"namespace"`

	/** HTTP 监听地址，为空时不暴露 */
	Listen string `yaml:"listen"`
}

/**
 * LoggingConfig 日志配置
 */
type LoggingConfig struct {
	/** 日志级别 */
	Level string `yaml:"level"`

	/** 运行环境（development/production） */
	Env string `yaml:"env"`

	/** 文件配置 */
	File FileConfig `yaml:"file"`
}

/**
 * FileConfig 日志文件配置
 */
type FileConfig struct {
	/** 日志文件路径，为空时只输出到控制台 */
	Path string `yaml:"path"`

	/** 单个文件最大尺寸（MB） */
	MaxSizeMB int `yaml:"max_size_mb"`

	/** 最大备份文件数 */
	MaxBackups int `yaml:"max_backups"`

	/** 最大保留天数 */
	MaxAgeDays int `yaml:"max_age_days"`

	/** 是否压缩 */
	Compress bool `yaml:"compress"`
}

// DefaultConfigDir 默认配置目录 ~/.opwatch
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".opwatch"
	}
	return filepath.Join(home, ".opwatch")
}

// DefaultConfigPath 默认配置文件路径
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

/**
 * Load 加载配置文件
 *
 * 文件中未出现的字段保留默认值；文件不存在时返回默认配置
 *
 * Parameters:
 *   - path: 配置文件路径，为空时使用默认路径
 *
 * Returns:
 *   - *Config: 加载的配置
 *   - error: 错误信息
 */
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return LoadDefault()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := defaults()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	expandEnvVars(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

/**
 * LoadDefault 加载默认配置
 *
 * Returns:
 *   - *Config: 默认配置
 *   - error: 错误信息
 */
func LoadDefault() (*Config, error) {
	config := defaults()
	expandEnvVars(config)
	return config, nil
}

func defaults() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:    "opwatch",
			Version: "1.0.0",
		},
		Analyzer: AnalyzerConfig{
			MaxUnrelatedActions: 5,
			RecentCapacity:      50,
			DefaultTimeout:      "30s",
		},
		Patterns: PatternsConfig{
			Path:  "${HOME}/.opwatch/patterns.json",
			Watch: true,
		},
		Monitor: MonitorConfig{
			PollInterval:    "1s",
			EventBufferSize: 256,
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:            "${HOME}/.opwatch/journal.db",
				MaxOpenConns:    4,
				MaxIdleConns:    2,
				ConnMaxLifetime: "5m",
				Batch: BatchConfig{
					Size:          100,
					FlushInterval: "2s",
					Buffer:        1000,
				},
			},
		},
		Metrics: MetricsConfig{
			Namespace: "opwatch",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

/**
 * Save 以 YAML 格式保存配置
 *
 * Parameters:
 *   - config: 配置
 *   - path: 目标路径，为空时使用默认路径
 *
 * Returns: error - 错误信息
 */
func Save(config *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

/**
 * expandEnvVars 展开路径中的环境变量
 *
 * 支持 ${VAR} 和 $VAR；未设置 HOME 时使用系统用户目录
 *
 * Parameters:
 *   - config: 配置对象
 */
func expandEnvVars(config *Config) {
	expand := func(s string) string {
		return os.Expand(s, func(name string) string {
			if v, ok := os.LookupEnv(name); ok {
				return v
			}
			if name == "HOME" {
				if home, err := os.UserHomeDir(); err == nil {
					return home
				}
			}
			return ""
		})
	}

	config.Patterns.Path = expand(config.Patterns.Path)
	config.Monitor.File = expand(config.Monitor.File)
	config.Storage.SQLite.Path = expand(config.Storage.SQLite.Path)
	config.Logging.File.Path = expand(config.Logging.File.Path)
}

/**
 * Validate 校验配置
 *
 * Returns: error - 所有问题合并后的错误
 */
func (c *Config) Validate() error {
	var errs []error

	if c.Analyzer.MaxUnrelatedActions < 0 {
		errs = append(errs, fmt.Errorf("analyzer.max_unrelated_actions 不能为负数: %d", c.Analyzer.MaxUnrelatedActions))
	}
	if c.Analyzer.RecentCapacity < 0 {
		errs = append(errs, fmt.Errorf("analyzer.recent_capacity 不能为负数: %d", c.Analyzer.RecentCapacity))
	}
	if c.Monitor.EventBufferSize < 0 {
		errs = append(errs, fmt.Errorf("monitor.event_buffer_size 不能为负数: %d", c.Monitor.EventBufferSize))
	}

	sqlite := c.Storage.SQLite
	if sqlite.MaxOpenConns < 0 || sqlite.MaxIdleConns < 0 {
		errs = append(errs, fmt.Errorf("storage.sqlite 连接数不能为负数"))
	}
	if sqlite.Batch.Size < 0 || sqlite.Batch.Buffer < 0 {
		errs = append(errs, fmt.Errorf("storage.sqlite.batch 大小不能为负数"))
	}
	if sqlite.Enabled && strings.TrimSpace(sqlite.Path) == "" {
		errs = append(errs, fmt.Errorf("storage.sqlite.path 不能为空"))
	}

	durations := map[string]string{
		"analyzer.default_timeout":            c.Analyzer.DefaultTimeout,
		"monitor.poll_interval":               c.Monitor.PollInterval,
		"storage.sqlite.conn_max_lifetime":    sqlite.ConnMaxLifetime,
		"storage.sqlite.batch.flush_interval": sqlite.Batch.FlushInterval,
	}
	for name, value := range durations {
		if _, err := ParseDuration(value, 0); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level 无效: %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

/**
 * ParseDuration 解析时长字符串
 *
 * Parameters:
 *   - value: 时长字符串（如 30s、5m），为空时返回 fallback
 *   - fallback: 默认值
 *
 * Returns: time.Duration - 时长, error - 格式错误或负数
 */
func ParseDuration(value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("无效的时长 %q: %w", value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("时长不能为负数: %q", value)
	}
	return d, nil
}

// Timeout 分析器默认超时
func (c AnalyzerConfig) Timeout() time.Duration {
	d, err := ParseDuration(c.DefaultTimeout, 30*time.Second)
	if err != nil || d == 0 {
		return 30 * time.Second
	}
	return d
}

// Poll 兜底轮询间隔
func (c MonitorConfig) Poll() time.Duration {
	d, err := ParseDuration(c.PollInterval, time.Second)
	if err != nil || d == 0 {
		return time.Second
	}
	return d
}

// LoggerOptions 转换为日志配置
func (c LoggingConfig) LoggerOptions(debug bool) logger.Options {
	level := c.Level
	if debug {
		level = "debug"
	}
	return logger.Options{
		Env:        c.Env,
		Level:      level,
		File:       c.File.Path,
		MaxSizeMB:  c.File.MaxSizeMB,
		MaxBackups: c.File.MaxBackups,
		MaxAgeDays: c.File.MaxAgeDays,
		Compress:   c.File.Compress,
	}
}
