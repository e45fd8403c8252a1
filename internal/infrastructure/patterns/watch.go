package patterns

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultWatchDebounce 文件事件合并窗口
const DefaultWatchDebounce = 200 * time.Millisecond

/**
 * Watch 监听模式文件并在变化时重新加载
 *
 * 监听文件所在目录（编辑器和 Save 都通过重命名替换文件）。
 * 新文件不合法时记录警告并保留当前快照。阻塞直到 ctx 取消。
 *
 * Parameters:
 *   - ctx: 上下文
 *   - debounce: 事件合并窗口，<=0 时使用默认值
 *
 * Returns: error - 创建监听失败时的错误；ctx 取消时返回 nil
 */
func (s *Store) Watch(ctx context.Context, debounce time.Duration) error {
	if s.path == "" {
		return fmt.Errorf("未设置模式文件路径")
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	target, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("解析模式文件路径失败: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("监听模式目录失败: %w", err)
	}

	s.log.Info("开始监听模式文件", zap.String("path", target))

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("停止监听模式文件")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			s.reloadFromDisk()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("模式文件监听错误", zap.Error(err))
		}
	}
}

func (s *Store) reloadFromDisk() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warn("读取模式文件失败，保留当前模式库", zap.Error(err))
		return
	}
	// 编辑器保存时可能先截断文件
	if len(bytes.TrimSpace(data)) == 0 {
		return
	}
	if err := s.loadData(data, true); err != nil {
		s.log.Warn("模式文件不合法，保留当前模式库", zap.Error(err))
	}
}
