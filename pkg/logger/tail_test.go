package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLines(t *testing.T, path string, n int, width int) {
	t.Helper()
	var b strings.Builder
	for i := 1; i <= n; i++ {
		line := fmt.Sprintf("line %d ", i)
		b.WriteString(line + strings.Repeat("x", width) + "\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
}

func TestTailFileShort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	writeLines(t, path, 5, 0)

	lines, err := TailFile(path, 100)
	require.NoError(t, err)
	require.Len(t, lines, 5)
	assert.Equal(t, "line 1 ", lines[0])
}

func TestTailFileLastN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	// large enough to need more than one window
	writeLines(t, path, 2000, 200)

	lines, err := TailFile(path, 100)
	require.NoError(t, err)
	require.Len(t, lines, 100)
	assert.True(t, strings.HasPrefix(lines[0], "line 1901 "))
	assert.True(t, strings.HasPrefix(lines[99], "line 2000 "))
}

func TestTailFileMissing(t *testing.T) {
	lines, err := TailFile(filepath.Join(t.TempDir(), "absent.log"), 10)
	assert.NoError(t, err)
	assert.Empty(t, lines)
}
