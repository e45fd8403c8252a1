/**
 * Package logger 日志系统测试
 */
package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// resetLogger 重置全局 logger 状态（仅用于测试）
func resetLogger() {
	mu.Lock()
	logger = nil
	sugar = nil
	mu.Unlock()
}

// TestInit 测试日志系统初始化
//
// 测试场景：
//  1. 开发环境初始化
//  2. 生产环境初始化
//  3. 重复初始化替换全局实例
func TestInit(t *testing.T) {
	t.Run("开发环境初始化", func(t *testing.T) {
		resetLogger()
		t.Setenv("ENV", "development")

		require.NoError(t, InitLogger(), "初始化日志系统不应失败")
		assert.NotNil(t, logger)
		assert.NotNil(t, sugar)
	})

	t.Run("生产环境初始化", func(t *testing.T) {
		resetLogger()
		t.Setenv("ENV", "production")

		require.NoError(t, InitLogger())
		assert.NotNil(t, logger)
	})

	t.Run("重复初始化替换实例", func(t *testing.T) {
		resetLogger()
		require.NoError(t, Init(Options{Env: "development", Level: "info"}))
		first := GetLogger()

		require.NoError(t, Init(Options{Env: "development", Level: "debug"}))
		assert.NotSame(t, first, GetLogger())
	})
}

// TestInit_FileOutput 测试文件输出（lumberjack 滚动文件）
func TestInit_FileOutput(t *testing.T) {
	resetLogger()
	path := filepath.Join(t.TempDir(), "opwatch.log")

	require.NoError(t, Init(Options{Env: "production", Level: "info", File: path}))
	Info("写入文件", zap.String("key", "value"))
	_ = Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "写入文件")
	assert.Contains(t, string(data), `"key":"value"`)
}

// TestGetLogger 测试未初始化时自动初始化
func TestGetLogger(t *testing.T) {
	resetLogger()
	t.Setenv("ENV", "development")

	assert.NotNil(t, GetLogger())
	assert.NotNil(t, GetSugaredLogger())
}

// TestSetLogger 测试替换全局 logger
func TestSetLogger(t *testing.T) {
	nop := zap.NewNop()
	SetLogger(nop)
	assert.Same(t, nop, GetLogger())

	SetLogger(nil)
	assert.NotNil(t, GetLogger(), "nil 应替换为 Nop logger")
}

// TestConvenienceFunctions 测试便利函数不会 panic
func TestConvenienceFunctions(t *testing.T) {
	SetLogger(zap.NewNop())

	assert.NotPanics(t, func() {
		Debug("debug", zap.String("key", "value"))
		Info("info", zap.Int("n", 1))
		Warn("warn")
		Error("error", zap.Error(assert.AnError))
		_ = With(zap.String("component", "test"))
		_ = Sync()
	})
}

// TestParseLevel 测试日志级别解析
func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "合法级别", input: "warn", expected: "warn"},
		{name: "大小写与空格", input: "  ERROR ", expected: "error"},
		{name: "非法级别回退", input: "verbose", expected: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level := parseLevel(tt.input, zap.InfoLevel)
			assert.Equal(t, tt.expected, level.String())
		})
	}
}
