package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestNewTailer(t *testing.T) {
	tailer := NewTailer("/test/path", true)

	assert.Equal(t, "/test/path", tailer.Path)
	assert.True(t, tailer.fromBeg)
	assert.False(t, tailer.started)
	assert.Nil(t, tailer.file)
}

func TestTailerReadNewLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ui.log")
	require.NoError(t, os.WriteFile(path, []byte("line1\nline2\nline3\n"), 0o644))

	tailer := NewTailer(path, true)
	defer tailer.Close()

	lines, err := tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"line1", "line2", "line3"}, lines)

	lines, err = tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Empty(t, lines, "没有新内容")

	appendFile(t, path, "line4\nline5\n")
	lines, err = tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"line4", "line5"}, lines)
	assert.Equal(t, int64(len("line1\nline2\nline3\nline4\nline5\n")), tailer.Offset())
}

func TestTailerReadFromEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ui.log")
	require.NoError(t, os.WriteFile(path, []byte("old1\nold2\n"), 0o644))

	tailer := NewTailer(path, false)
	defer tailer.Close()

	lines, err := tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Empty(t, lines, "跳过已有内容")

	appendFile(t, path, "new\n")
	lines, err = tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, lines)
}

func TestTailerIncompleteLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ui.log")
	require.NoError(t, os.WriteFile(path, []byte("line1\nincomp"), 0o644))

	tailer := NewTailer(path, true)
	defer tailer.Close()

	lines, err := tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"line1"}, lines)

	appendFile(t, path, "lete\r\n")
	lines, err = tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"incomplete"}, lines, "拼接缓存的半行并去掉 \\r")
}

func TestTailerTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ui.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("line\n", 20)), 0o644))

	tailer := NewTailer(path, true)
	defer tailer.Close()

	lines, err := tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Len(t, lines, 20)

	require.NoError(t, os.WriteFile(path, []byte("fresh\n"), 0o644))
	lines, err = tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, lines)
}

func TestTailerRenameRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ui.log")
	require.NoError(t, os.WriteFile(path, []byte("before\n"), 0o644))

	tailer := NewTailer(path, false)
	defer tailer.Close()

	lines, err := tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, os.Rename(path, filepath.Join(dir, "ui.log.1")))
	require.NoError(t, os.WriteFile(path, []byte("rotated1\nrotated2\n"), 0o644))

	// 轮转后的新文件从头读取
	lines, err = tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"rotated1", "rotated2"}, lines)
}

func TestTailerMissingFile(t *testing.T) {
	tailer := NewTailer(filepath.Join(t.TempDir(), "missing.log"), true)

	_, err := tailer.ReadNewLines()
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoError(t, tailer.Close())
}

func TestTailerReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ui.log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))

	tailer := NewTailer(path, true)
	defer tailer.Close()

	lines, err := tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	tailer.Reset()
	assert.False(t, tailer.started)
	lines, err = tailer.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)
}
