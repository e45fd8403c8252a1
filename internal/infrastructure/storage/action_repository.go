package storage

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

/**
 * JournalEntry 动作日志条目
 */
type JournalEntry struct {
	// SessionID 会话 ID
	SessionID string

	// Seq 会话内序号，从 1 开始
	Seq int64

	// Event 动作
	Event models.ActionEvent

	// RecordedAt 记录时间
	RecordedAt time.Time
}

/**
 * SessionInfo 会话摘要
 */
type SessionInfo struct {
	ID          string
	Source      string
	ActionCount int64
	StartedAt   time.Time
	LastAction  time.Time
}

/**
 * JournalStats 动作日志统计信息
 */
type JournalStats struct {
	// TotalCount 总动作数
	TotalCount int64

	// SessionCount 会话数
	SessionCount int64

	// CountByType 按事件类型统计
	CountByType map[string]int64
}

/**
 * ActionRepository 动作日志存储接口
 */
type ActionRepository interface {
	// CreateSession 登记会话
	CreateSession(session *Session) error

	// Save 保存单个条目
	Save(entry JournalEntry) error

	// SaveBatch 批量保存条目
	SaveBatch(entries []JournalEntry) error

	// FindBySession 按序号返回会话中的全部动作
	FindBySession(sessionID string) ([]models.ActionEvent, error)

	// FindRecent 查询最近的条目（从旧到新）
	FindRecent(limit int) ([]JournalEntry, error)

	// ListSessions 列出会话（最近的在前）
	ListSessions() ([]SessionInfo, error)

	// DeleteSession 删除会话及其动作
	DeleteSession(sessionID string) (int64, error)

	// GetStats 获取统计信息
	GetStats() (*JournalStats, error)
}

/**
 * Session 一次记录会话
 *
 * 为动作分配递增序号，可在多个 goroutine 中使用
 */
type Session struct {
	ID        string
	Source    string
	StartedAt time.Time

	seq atomic.Int64
}

/**
 * NewSession 创建记录会话
 *
 * Parameters:
 *   - source: 动作来源（文件路径或 stdin）
 *
 * Returns: *Session - 会话
 */
func NewSession(source string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		Source:    source,
		StartedAt: time.Now(),
	}
}

// Entry 为动作生成下一个日志条目
func (s *Session) Entry(ev models.ActionEvent) JournalEntry {
	return JournalEntry{
		SessionID:  s.ID,
		Seq:        s.seq.Add(1),
		Event:      ev,
		RecordedAt: time.Now(),
	}
}

// Count 已分配的条目数
func (s *Session) Count() int64 {
	return s.seq.Load()
}

/**
 * SQLiteActionRepository SQLite 动作日志仓储实现
 */
type SQLiteActionRepository struct {
	db *sql.DB
}

/**
 * NewSQLiteActionRepository 创建 SQLite 动作日志仓储
 *
 * Parameters:
 *   - db: 已完成迁移的数据库连接
 *
 * Returns: *SQLiteActionRepository - 仓储实例
 */
func NewSQLiteActionRepository(db *sql.DB) *SQLiteActionRepository {
	return &SQLiteActionRepository{db: db}
}

const insertActionSQL = `
	INSERT INTO actions (session_id, seq, timestamp, event_type, control_type, element_name,
		automation_id, class_name, path, old_value, new_value, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectActionColumns = `session_id, seq, timestamp, event_type, control_type, element_name,
	automation_id, class_name, path, old_value, new_value, recorded_at`

func entryArgs(e JournalEntry) []any {
	ev := e.Event
	return []any{
		e.SessionID,
		e.Seq,
		ev.Timestamp,
		string(ev.EventType),
		ev.ControlType,
		ev.ElementName,
		ev.AutomationID,
		ev.ClassName,
		ev.Path,
		ev.OldValue,
		ev.NewValue,
		e.RecordedAt.UnixMilli(),
	}
}

/**
 * CreateSession 登记会话
 *
 * Parameters:
 *   - session: 会话
 *
 * Returns: error - 错误信息
 */
func (r *SQLiteActionRepository) CreateSession(session *Session) error {
	_, err := r.db.Exec(
		"INSERT OR IGNORE INTO sessions (id, source, started_at) VALUES (?, ?, ?)",
		session.ID, session.Source, session.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("登记会话失败: %w", err)
	}
	return nil
}

/**
 * Save 保存单个条目
 *
 * Parameters:
 *   - entry: 日志条目
 *
 * Returns: error - 错误信息
 */
func (r *SQLiteActionRepository) Save(entry JournalEntry) error {
	if _, err := r.db.Exec(insertActionSQL, entryArgs(entry)...); err != nil {
		logger.Error("保存动作失败",
			zap.String("session_id", entry.SessionID),
			zap.Int64("seq", entry.Seq),
			zap.Error(err),
		)
		return fmt.Errorf("保存动作失败: %w", err)
	}
	return nil
}

/**
 * SaveBatch 批量保存条目
 *
 * 使用事务和预处理语句，任一条失败则整批回滚
 *
 * Parameters:
 *   - entries: 日志条目
 *
 * Returns: error - 错误信息
 */
func (r *SQLiteActionRepository) SaveBatch(entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertActionSQL)
	if err != nil {
		return fmt.Errorf("准备语句失败: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.Exec(entryArgs(entry)...); err != nil {
			logger.Error("插入动作失败",
				zap.String("session_id", entry.SessionID),
				zap.Int64("seq", entry.Seq),
				zap.Error(err),
			)
			return fmt.Errorf("插入动作失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	logger.Debug("批量保存动作成功", zap.Int("count", len(entries)))
	return nil
}

/**
 * FindBySession 按序号返回会话中的全部动作
 *
 * Parameters:
 *   - sessionID: 会话 ID
 *
 * Returns: []models.ActionEvent - 动作列表, error - 错误信息
 */
func (r *SQLiteActionRepository) FindBySession(sessionID string) ([]models.ActionEvent, error) {
	rows, err := r.db.Query(
		"SELECT "+selectActionColumns+" FROM actions WHERE session_id = ? ORDER BY seq ASC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("查询会话动作失败: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	out := make([]models.ActionEvent, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Event)
	}
	return out, nil
}

/**
 * FindRecent 查询最近的条目
 *
 * Parameters:
 *   - limit: 返回数量限制
 *
 * Returns: []JournalEntry - 从旧到新排列的条目, error - 错误信息
 */
func (r *SQLiteActionRepository) FindRecent(limit int) ([]JournalEntry, error) {
	rows, err := r.db.Query(
		"SELECT "+selectActionColumns+" FROM actions ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("查询最近动作失败: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	// 反转顺序（从旧到新）
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

/**
 * ListSessions 列出会话
 *
 * 包括只有动作没有登记信息的会话
 *
 * Returns: []SessionInfo - 按最近动作时间倒序, error - 错误信息
 */
func (r *SQLiteActionRepository) ListSessions() ([]SessionInfo, error) {
	rows, err := r.db.Query(`
		SELECT a.session_id, COALESCE(s.source, ''), COUNT(*),
			COALESCE(s.started_at, MIN(a.recorded_at)), MAX(a.recorded_at)
		FROM actions a
		LEFT JOIN sessions s ON s.id = a.session_id
		GROUP BY a.session_id
		ORDER BY MAX(a.recorded_at) DESC, a.session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("查询会话列表失败: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var started, last int64
		if err := rows.Scan(&info.ID, &info.Source, &info.ActionCount, &started, &last); err != nil {
			return nil, fmt.Errorf("扫描会话行失败: %w", err)
		}
		info.StartedAt = time.UnixMilli(started)
		info.LastAction = time.UnixMilli(last)
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历会话行失败: %w", err)
	}
	return sessions, nil
}

/**
 * DeleteSession 删除会话及其动作
 *
 * Parameters:
 *   - sessionID: 会话 ID
 *
 * Returns: int64 - 删除的动作数, error - 错误信息
 */
func (r *SQLiteActionRepository) DeleteSession(sessionID string) (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec("DELETE FROM actions WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("删除会话动作失败: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("获取删除行数失败: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return 0, fmt.Errorf("删除会话失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}

	logger.Info("删除会话", zap.String("session_id", sessionID), zap.Int64("count", count))
	return count, nil
}

/**
 * GetStats 获取统计信息
 *
 * Returns: *JournalStats - 统计信息, error - 错误信息
 */
func (r *SQLiteActionRepository) GetStats() (*JournalStats, error) {
	stats := &JournalStats{
		CountByType: make(map[string]int64),
	}

	err := r.db.QueryRow("SELECT COUNT(*), COUNT(DISTINCT session_id) FROM actions").
		Scan(&stats.TotalCount, &stats.SessionCount)
	if err != nil {
		return nil, fmt.Errorf("查询总数失败: %w", err)
	}

	rows, err := r.db.Query("SELECT event_type, COUNT(*) FROM actions GROUP BY event_type")
	if err != nil {
		return nil, fmt.Errorf("按类型统计失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("扫描类型统计失败: %w", err)
		}
		stats.CountByType[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历类型统计失败: %w", err)
	}

	return stats, nil
}

func scanEntries(rows *sql.Rows) ([]JournalEntry, error) {
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var eventType string
		var recorded int64
		err := rows.Scan(
			&e.SessionID,
			&e.Seq,
			&e.Event.Timestamp,
			&eventType,
			&e.Event.ControlType,
			&e.Event.ElementName,
			&e.Event.AutomationID,
			&e.Event.ClassName,
			&e.Event.Path,
			&e.Event.OldValue,
			&e.Event.NewValue,
			&recorded,
		)
		if err != nil {
			return nil, fmt.Errorf("扫描动作行失败: %w", err)
		}
		e.Event.EventType = models.EventType(eventType)
		e.RecordedAt = time.UnixMilli(recorded)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历动作行失败: %w", err)
	}
	return entries, nil
}
