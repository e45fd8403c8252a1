/**
 * Package logger 提供结构化日志功能
 *
 * 基于 uber-go/zap 实现，文件输出通过 lumberjack 滚动切割。
 * 支持开发环境和生产环境的不同配置。
 */
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// logger 全局日志实例
	logger *zap.Logger

	// sugar 全局 sugared logger 实例
	sugar *zap.SugaredLogger

	// mu 保护全局实例的替换
	mu sync.RWMutex
)

// Options 日志配置
//
// 零值表示全部使用环境变量或默认值。
type Options struct {
	// Env 环境类型（development/production）
	Env string

	// Level 日志级别（debug/info/warn/error）
	Level string

	// File 日志文件路径，为空时只输出到控制台
	File string

	// MaxSizeMB 单个日志文件最大尺寸（MB）
	MaxSizeMB int

	// MaxBackups 最大备份文件数
	MaxBackups int

	// MaxAgeDays 最大保留天数
	MaxAgeDays int

	// Compress 是否压缩旧文件
	Compress bool
}

// InitLogger 初始化日志系统
//
// 根据环境变量配置日志系统：
//   - ENV: 环境类型（development/production），默认为 development
//   - LOG_LEVEL: 日志级别，默认根据环境自动设置
//   - LOG_FILE: 日志文件路径（可选）
//
// Returns: error - 初始化失败时返回错误
func InitLogger() error {
	return Init(Options{})
}

// Init 按给定配置初始化日志系统
//
// 未填写的字段回退到环境变量，重复调用会替换全局实例。
//
// Parameters:
//   - opts: 日志配置
//
// Returns: error - 初始化失败时返回错误
func Init(opts Options) error {
	opts = withEnvDefaults(opts)

	var (
		l   *zap.Logger
		err error
	)
	if opts.Env == "production" {
		l, err = newProductionLogger(opts)
	} else {
		l, err = newDevelopmentLogger(opts)
	}
	if err != nil {
		return err
	}

	mu.Lock()
	logger = l
	sugar = l.Sugar()
	mu.Unlock()
	return nil
}

// withEnvDefaults 用环境变量补全未设置的字段
func withEnvDefaults(opts Options) Options {
	if opts.Env == "" {
		opts.Env = getEnv("ENV", "development")
	}
	if opts.Level == "" {
		if opts.Env == "production" {
			opts.Level = getEnv("LOG_LEVEL", "info")
		} else {
			opts.Level = getEnv("LOG_LEVEL", "debug")
		}
	}
	if opts.File == "" {
		opts.File = getEnv("LOG_FILE", "")
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 50
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 30
	}
	return opts
}

// newDevelopmentLogger 初始化开发环境日志
//
// 开发环境配置：
//   - 控制台彩色输出
//   - 默认 Debug 级别
//   - 友好的时间格式（2024-01-29 15:04:05.123）
func newDevelopmentLogger(opts Options) (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	level := parseLevel(opts.Level, zapcore.DebugLevel)

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level),
	}

	// 文件输出不带颜色
	if opts.File != "" {
		fileEncoder := encoderConfig
		fileEncoder.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(fileEncoder),
			rotatingWriter(opts),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.Development()), nil
}

// newProductionLogger 初始化生产环境日志
//
// 生产环境配置：
//   - JSON 格式（机器可解析）
//   - 默认 Info 级别
//   - Error 级别附带堆栈
//   - 指定 LOG_FILE 时写入滚动文件，否则写 stdout
func newProductionLogger(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionEncoderConfig()
	config.TimeKey = "timestamp"
	config.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncodeCaller = zapcore.ShortCallerEncoder

	level := parseLevel(opts.Level, zapcore.InfoLevel)

	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stdout)
	if opts.File != "" {
		sink = rotatingWriter(opts)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(config), sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// rotatingWriter 创建按大小滚动的文件输出
func rotatingWriter(opts Options) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	})
}

// parseLevel 解析日志级别，失败时使用 fallback
func parseLevel(level string, fallback zapcore.Level) zap.AtomicLevel {
	parsed, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = fallback
	}
	return zap.NewAtomicLevelAt(parsed)
}

// GetLogger 获取全局 logger 实例
//
// 如果日志系统未初始化，会自动初始化（开发模式）。
func GetLogger() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	if err := InitLogger(); err != nil {
		return zap.NewNop()
	}
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// GetSugaredLogger 获取全局 sugared logger 实例
//
// 适合非关键路径的日志记录。
func GetSugaredLogger() *zap.SugaredLogger {
	return GetLogger().Sugar()
}

// SetLogger 替换全局 logger（测试中常用 zap.NewNop()）
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	logger = l
	sugar = l.Sugar()
	mu.Unlock()
}

// Sync 刷新日志缓冲区
//
// 应用退出前应该调用此方法确保所有日志都已写入。
func Sync() error {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l.Sync()
	}
	return nil
}

// Debug 记录 Debug 级别日志
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Info 记录 Info 级别日志
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Warn 记录 Warn 级别日志
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error 记录 Error 级别日志
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal 记录 Fatal 级别日志后退出程序
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// With 创建带有预设字段的 logger
//
// Parameters:
//   - fields: 预设的日志字段
//
// Returns: *zap.Logger - 带有预设字段的 logger
func With(fields ...zap.Field) *zap.Logger {
	return GetLogger().With(fields...)
}

// getEnv 获取环境变量，不存在时返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
