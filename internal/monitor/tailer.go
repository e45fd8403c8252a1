/**
 * Package monitor 监控引擎
 *
 * 从日志文件、标准输入或动作日志读取行，交给操作分析器，
 * 并把动作和操作通知发布到事件总线。
 */

package monitor

import (
	"errors"
	"io"
	"os"
	"strings"
)

/**
 * Tailer 跟踪日志文件新追加的行
 *
 * 记录读取位置，只返回完整的行，文件被截断或替换时从头重新读取
 */
type Tailer struct {
	// Path 被跟踪的文件路径
	Path string

	file    *os.File
	offset  int64
	pending string
	started bool
	fromBeg bool
}

/**
 * NewTailer 创建 Tailer
 *
 * Parameters:
 *   - path: 日志文件路径
 *   - fromBeginning: 首次打开时是否读取已有内容，false 时跳到文件末尾
 *
 * Returns: *Tailer - Tailer 实例
 */
func NewTailer(path string, fromBeginning bool) *Tailer {
	return &Tailer{
		Path:    path,
		fromBeg: fromBeginning,
	}
}

func (t *Tailer) ensureFile() error {
	if t.file != nil {
		return nil
	}

	f, err := os.Open(t.Path)
	if err != nil {
		return err
	}
	t.file = f
	t.offset = 0
	t.pending = ""

	// 只有第一次打开时才跳过已有内容，轮转后的新文件从头读
	if !t.fromBeg && !t.started {
		if info, err := f.Stat(); err == nil {
			t.offset = info.Size()
		}
	}
	t.started = true
	return nil
}

// reopen 关闭当前文件，下次读取时重新打开并从头开始
func (t *Tailer) reopen() {
	if t.file != nil {
		t.file.Close()
	}
	t.file = nil
	t.offset = 0
	t.pending = ""
}

// Reset 关闭文件并恢复到初始状态
func (t *Tailer) Reset() {
	t.reopen()
	t.started = false
}

// Close 关闭文件
func (t *Tailer) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// Offset 当前读取位置
func (t *Tailer) Offset() int64 {
	return t.offset
}

/**
 * ReadNewLines 读取上次读取之后追加的完整行
 *
 * 未以换行结尾的部分会缓存到下次读取；行尾的 \r 会被去掉
 *
 * Returns: []string - 新的完整行, error - 文件不可读时返回错误
 */
func (t *Tailer) ReadNewLines() ([]string, error) {
	if err := t.ensureFile(); err != nil {
		return nil, err
	}

	info, err := t.file.Stat()
	if err != nil {
		t.reopen()
		return nil, err
	}

	// 路径指向了另一个文件（按重命名方式轮转）
	if current, statErr := os.Stat(t.Path); statErr == nil && !os.SameFile(info, current) {
		t.reopen()
		if err := t.ensureFile(); err != nil {
			return nil, err
		}
		if info, err = t.file.Stat(); err != nil {
			t.reopen()
			return nil, err
		}
	}

	// 文件被截断
	if info.Size() < t.offset {
		t.offset = 0
		t.pending = ""
	}

	if info.Size() == t.offset {
		return nil, nil
	}

	if _, err := t.file.Seek(t.offset, io.SeekStart); err != nil {
		t.reopen()
		return nil, err
	}

	data, err := io.ReadAll(t.file)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	t.offset += int64(len(data))

	text := t.pending + string(data)
	parts := strings.Split(text, "\n")

	// 最后一段是未完成的行（文本以换行结尾时为空串）
	t.pending = parts[len(parts)-1]
	parts = parts[:len(parts)-1]

	lines := make([]string, 0, len(parts))
	for _, line := range parts {
		lines = append(lines, strings.TrimSuffix(line, "\r"))
	}
	return lines, nil
}
