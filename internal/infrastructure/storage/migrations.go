package storage

import (
	"database/sql"
	"fmt"

	"github.com/chenyang-zz/opwatch/pkg/logger"
	"go.uber.org/zap"
)

/**
 * Migration 数据库迁移
 */
type Migration struct {
	// Version 迁移版本号
	Version int

	// Name 迁移名称
	Name string

	// SQL 迁移 SQL 语句
	SQL string
}

// 所有迁移脚本（按版本号排序）
var migrations = []Migration{
	{
		Version: 1,
		Name:    "init_schema_migrations",
		SQL: `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`,
	},
	{
		Version: 2,
		Name:    "init_actions_table",
		SQL: `
CREATE TABLE IF NOT EXISTS actions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    timestamp TEXT NOT NULL DEFAULT '',
    event_type TEXT NOT NULL,
    control_type TEXT NOT NULL DEFAULT '',
    element_name TEXT NOT NULL DEFAULT '',
    automation_id TEXT NOT NULL DEFAULT '',
    class_name TEXT NOT NULL DEFAULT '',
    path TEXT NOT NULL DEFAULT '',
    old_value TEXT NOT NULL DEFAULT '',
    new_value TEXT NOT NULL DEFAULT '',
    recorded_at INTEGER NOT NULL,
    UNIQUE (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_actions_session ON actions(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_actions_recorded_at ON actions(recorded_at);
CREATE INDEX IF NOT EXISTS idx_actions_event_type ON actions(event_type);
`,
	},
	{
		Version: 3,
		Name:    "init_sessions_table",
		SQL: `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL
);
`,
	},
}

/**
 * RunMigrations 执行数据库迁移
 *
 * Parameters:
 *   - db: 数据库连接
 *
 * Returns: error - 错误信息
 */
func RunMigrations(db *sql.DB) error {
	logger.Info("开始执行数据库迁移")

	// 开启事务
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}

	// 获取已应用的迁移版本
	appliedVersions := make(map[int]bool)

	// 首次运行时版本表尚不存在，先建表再读取
	if _, err := tx.Exec(migrations[0].SQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("创建迁移版本表失败: %w", err)
	}

	rows, err := tx.Query("SELECT version FROM schema_migrations")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("查询迁移版本失败: %w", err)
	}
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			tx.Rollback()
			return fmt.Errorf("扫描迁移版本失败: %w", err)
		}
		appliedVersions[version] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		tx.Rollback()
		return fmt.Errorf("遍历迁移版本失败: %w", err)
	}
	rows.Close()

	// 执行未应用的迁移
	for _, migration := range migrations {
		if appliedVersions[migration.Version] {
			logger.Debug("跳过已应用的迁移",
				zap.Int("version", migration.Version),
				zap.String("name", migration.Name),
			)
			continue
		}

		logger.Info("应用迁移",
			zap.Int("version", migration.Version),
			zap.String("name", migration.Name),
		)

		// 执行迁移 SQL
		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("执行迁移 %s 失败: %w", migration.Name, err)
		}

		// 记录迁移版本
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version) VALUES (?)",
			migration.Version,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("记录迁移版本失败: %w", err)
		}

		logger.Info("迁移应用成功",
			zap.Int("version", migration.Version),
			zap.String("name", migration.Name),
		)
	}

	// 提交事务
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移事务失败: %w", err)
	}

	logger.Info("数据库迁移完成")
	return nil
}
