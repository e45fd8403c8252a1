package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/internal/infrastructure/storage"
	"github.com/chenyang-zz/opwatch/pkg/logger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultPollInterval 文件源的轮询间隔
const DefaultPollInterval = time.Second

// maxLineSize 单行最大长度
const maxLineSize = 1024 * 1024

/**
 * Line 输入源产生的一行
 */
type Line struct {
	// Text 原始文本
	Text string

	// Action 已解析的动作（来自动作日志时非空，此时忽略 Text）
	Action *models.ActionEvent

	// Source 输入源名称
	Source string

	// Number 行号，从 1 开始
	Number int64
}

/**
 * Source 行输入源
 *
 * Run 把行按顺序写入 out，ctx 取消或输入结束时返回
 */
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- Line) error
}

// emit 发送一行，ctx 取消时返回 false
func emit(ctx context.Context, out chan<- Line, line Line) bool {
	select {
	case out <- line:
		return true
	case <-ctx.Done():
		return false
	}
}

/**
 * ReaderSource 从 io.Reader 读取行（标准输入、回放文件）
 */
type ReaderSource struct {
	name   string
	reader io.Reader
}

/**
 * NewReaderSource 创建读取器输入源
 *
 * Parameters:
 *   - name: 输入源名称
 *   - r: 读取器
 *
 * Returns: *ReaderSource - 输入源
 */
func NewReaderSource(name string, r io.Reader) *ReaderSource {
	return &ReaderSource{name: name, reader: r}
}

// Name 实现 Source
func (s *ReaderSource) Name() string {
	return s.name
}

// Run 读取到 EOF 为止，超过 maxLineSize 的行以空行代替
func (s *ReaderSource) Run(ctx context.Context, out chan<- Line) error {
	reader := bufio.NewReaderSize(s.reader, 64*1024)

	var number int64
	for {
		text, oversized, err := readLine(reader, maxLineSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("读取输入失败 %s: %w", s.name, err)
		}
		number++
		if oversized {
			logger.Warn("跳过超长的输入行",
				zap.String("source", s.name),
				zap.Int64("line", number),
				zap.Int("limit", maxLineSize),
			)
		}
		if !emit(ctx, out, Line{Text: text, Source: s.name, Number: number}) {
			return nil
		}
	}
}

/**
 * readLine 读取一行，去掉行尾的换行符
 *
 * 超过 limit 的行被整行丢弃，返回空文本和 oversized=true
 *
 * Returns: string - 行内容, bool - 是否超长, error - 读取错误，输入结束时为 io.EOF
 */
func readLine(r *bufio.Reader, limit int) (string, bool, error) {
	var buf []byte
	oversized := false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if len(buf) > 0 || oversized {
				return string(buf), oversized, nil
			}
			return "", false, err
		}
		if !oversized {
			if len(buf)+len(chunk) > limit {
				oversized, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), oversized, nil
		}
	}
}

/**
 * FileSource 跟踪日志文件
 *
 * 通过 fsnotify 监听文件所在目录，同时按间隔轮询；
 * 无法创建文件监听时只使用轮询
 */
type FileSource struct {
	path          string
	fromBeginning bool
	poll          time.Duration
	log           *zap.Logger
}

/**
 * NewFileSource 创建文件输入源
 *
 * Parameters:
 *   - path: 日志文件路径
 *   - fromBeginning: 是否读取已有内容
 *   - poll: 轮询间隔，非正数使用 DefaultPollInterval
 *
 * Returns: *FileSource - 输入源
 */
func NewFileSource(path string, fromBeginning bool, poll time.Duration) *FileSource {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &FileSource{
		path:          path,
		fromBeginning: fromBeginning,
		poll:          poll,
		log:           logger.GetLogger().Named("tailer"),
	}
}

// Name 实现 Source
func (s *FileSource) Name() string {
	return s.path
}

// Run 持续跟踪文件直到 ctx 取消
func (s *FileSource) Run(ctx context.Context, out chan<- Line) error {
	abs, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("解析日志路径失败: %w", err)
	}

	tailer := NewTailer(abs, s.fromBeginning)
	defer tailer.Close()

	var number int64
	read := func() bool {
		lines, err := tailer.ReadNewLines()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				s.log.Debug("日志文件尚不存在", zap.String("path", abs))
			} else {
				s.log.Warn("读取日志文件失败", zap.String("path", abs), zap.Error(err))
			}
			return true
		}
		for _, text := range lines {
			number++
			if !emit(ctx, out, Line{Text: text, Source: abs, Number: number}) {
				return false
			}
		}
		return true
	}

	var fsEvents <-chan fsnotify.Event
	var fsErrors <-chan error
	if fsw, err := fsnotify.NewWatcher(); err != nil {
		s.log.Warn("创建文件监听失败，使用轮询模式", zap.Error(err))
	} else {
		defer fsw.Close()
		if err := fsw.Add(filepath.Dir(abs)); err != nil {
			s.log.Warn("监听日志目录失败，使用轮询模式", zap.String("dir", filepath.Dir(abs)), zap.Error(err))
		} else {
			fsEvents, fsErrors = fsw.Events, fsw.Errors
		}
	}

	s.log.Info("开始跟踪日志文件",
		zap.String("path", abs),
		zap.Bool("from_beginning", s.fromBeginning),
		zap.Duration("poll", s.poll),
		zap.Bool("fsnotify", fsEvents != nil),
	)

	if !read() {
		return nil
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !read() {
				return nil
			}

		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			s.log.Warn("文件监听错误", zap.Error(err))

		case <-ticker.C:
			if !read() {
				return nil
			}
		}
	}
}

/**
 * JournalSource 回放动作日志中的一个会话
 */
type JournalSource struct {
	repo      storage.ActionRepository
	sessionID string
}

/**
 * NewJournalSource 创建动作日志输入源
 *
 * Parameters:
 *   - repo: 动作日志仓储
 *   - sessionID: 会话 ID
 *
 * Returns: *JournalSource - 输入源
 */
func NewJournalSource(repo storage.ActionRepository, sessionID string) *JournalSource {
	return &JournalSource{repo: repo, sessionID: sessionID}
}

// Name 实现 Source
func (s *JournalSource) Name() string {
	return "journal:" + s.sessionID
}

// Run 按记录顺序发送会话中的全部动作
func (s *JournalSource) Run(ctx context.Context, out chan<- Line) error {
	actions, err := s.repo.FindBySession(s.sessionID)
	if err != nil {
		return fmt.Errorf("读取会话动作失败: %w", err)
	}
	if len(actions) == 0 {
		return fmt.Errorf("会话 %s 没有记录的动作", s.sessionID)
	}

	for i := range actions {
		ev := actions[i]
		if !emit(ctx, out, Line{Action: &ev, Source: s.Name(), Number: int64(i + 1)}) {
			return nil
		}
	}
	return nil
}
