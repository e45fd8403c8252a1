package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/internal/infrastructure/storage"
	"github.com/chenyang-zz/opwatch/pkg/logger"
	"go.uber.org/zap"
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = errors.New("会话不存在")

// ErrAmbiguousSession 会话 ID 前缀匹配到多个会话
var ErrAmbiguousSession = errors.New("会话 ID 前缀不唯一")

// JournalService 动作日志会话管理
type JournalService struct {
	// repo 动作日志仓储
	repo storage.ActionRepository
}

// NewJournalService 创建会话管理服务
//
// Parameters:
//   - repo: 动作日志仓储
//
// Returns: *JournalService - 服务实例
func NewJournalService(repo storage.ActionRepository) *JournalService {
	return &JournalService{repo: repo}
}

// Sessions 列出所有会话
func (s *JournalService) Sessions() ([]storage.SessionInfo, error) {
	sessions, err := s.repo.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("列出会话失败: %w", err)
	}
	return sessions, nil
}

// ResolveSession 把完整 ID 或唯一前缀解析为会话 ID
//
// Parameters:
//   - idOrPrefix: 会话 ID 或其前缀
//
// Returns: string - 完整会话 ID, error - 不存在或前缀不唯一
func (s *JournalService) ResolveSession(idOrPrefix string) (string, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return "", fmt.Errorf("%w: 会话 ID 为空", ErrSessionNotFound)
	}

	sessions, err := s.Sessions()
	if err != nil {
		return "", err
	}

	var matches []string
	for _, info := range sessions {
		if info.ID == idOrPrefix {
			return info.ID, nil
		}
		if strings.HasPrefix(info.ID, idOrPrefix) {
			matches = append(matches, info.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, idOrPrefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s 匹配 %d 个会话", ErrAmbiguousSession, idOrPrefix, len(matches))
	}
}

// DeleteSession 删除会话及其动作
//
// Returns: int64 - 删除的动作数, error - 删除失败
func (s *JournalService) DeleteSession(idOrPrefix string) (int64, error) {
	id, err := s.ResolveSession(idOrPrefix)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteSession(id)
	if err != nil {
		return 0, fmt.Errorf("删除会话失败: %w", err)
	}
	logger.Info("会话已删除", zap.String("session_id", id), zap.Int64("actions", n))
	return n, nil
}

// Actions 按记录顺序返回会话中的全部动作
//
// Returns: string - 完整会话 ID, []models.ActionEvent - 动作, error - 会话不存在或读取失败
func (s *JournalService) Actions(idOrPrefix string) (string, []models.ActionEvent, error) {
	id, err := s.ResolveSession(idOrPrefix)
	if err != nil {
		return "", nil, err
	}
	actions, err := s.repo.FindBySession(id)
	if err != nil {
		return "", nil, fmt.Errorf("读取会话动作失败: %w", err)
	}
	return id, actions, nil
}

// Recent 最近记录的动作，按时间从旧到新
func (s *JournalService) Recent(limit int) ([]storage.JournalEntry, error) {
	entries, err := s.repo.FindRecent(limit)
	if err != nil {
		return nil, fmt.Errorf("查询最近动作失败: %w", err)
	}
	return entries, nil
}

// Stats 动作日志统计
func (s *JournalService) Stats() (*storage.JournalStats, error) {
	stats, err := s.repo.GetStats()
	if err != nil {
		return nil, fmt.Errorf("查询动作日志统计失败: %w", err)
	}
	return stats, nil
}
