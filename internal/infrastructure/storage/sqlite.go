/**
 * Package storage 提供动作日志持久化功能
 *
 * 把解析出的界面动作按会话记录到 SQLite，供之后回放分析
 */

package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/chenyang-zz/opwatch/pkg/logger"
	_ "github.com/mattn/go-sqlite3" // SQLite 驱动
	"go.uber.org/zap"
)

/**
 * SQLiteConfig SQLite 配置
 */
type SQLiteConfig struct {
	// Path 数据库文件路径
	Path string

	// MaxOpenConns 最大打开连接数
	MaxOpenConns int

	// MaxIdleConns 最大空闲连接数
	MaxIdleConns int

	// ConnMaxLifetime 连接最大生命周期
	ConnMaxLifetime time.Duration
}

/**
 * NewSQLiteDB 创建 SQLite 数据库连接
 *
 * 文件数据库开启 WAL 模式
 *
 * Parameters:
 *   - config: SQLite 配置
 *
 * Returns: *sql.DB - 数据库连接实例, error - 错误信息
 */
func NewSQLiteDB(config SQLiteConfig) (*sql.DB, error) {
	logger.Info("创建 SQLite 数据库连接",
		zap.String("path", config.Path),
	)

	// 内存数据库使用共享缓存，保证连接池中的连接看到同一份数据
	dataSourceName := config.Path
	if config.Path == ":memory:" {
		dataSourceName = "file::memory:?mode=memory&cache=shared"
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		logger.Error("打开数据库失败", zap.Error(err))
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if config.Path != ":memory:" {
		pragmas := []struct {
			sql  string
			desc string
		}{
			{"PRAGMA journal_mode=WAL", "配置 WAL 模式失败"},
			{"PRAGMA synchronous=NORMAL", "配置同步模式失败"},
			{"PRAGMA cache_size=10000", "配置缓存大小失败"},
			{"PRAGMA busy_timeout=5000", "配置忙等待超时失败"},
		}
		for _, p := range pragmas {
			if _, err := db.Exec(p.sql); err != nil {
				logger.Error(p.desc, zap.Error(err))
				db.Close()
				return nil, fmt.Errorf("%s: %w", p.desc, err)
			}
		}
	}

	if err := db.Ping(); err != nil {
		logger.Error("数据库连接验证失败", zap.Error(err))
		db.Close()
		return nil, fmt.Errorf("数据库连接验证失败: %w", err)
	}

	logger.Info("SQLite 数据库连接成功")
	return db, nil
}

/**
 * OpenJournal 打开动作日志数据库并执行迁移
 *
 * Parameters:
 *   - config: SQLite 配置
 *
 * Returns: *sql.DB - 数据库连接, error - 错误信息
 */
func OpenJournal(config SQLiteConfig) (*sql.DB, error) {
	db, err := NewSQLiteDB(config)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
