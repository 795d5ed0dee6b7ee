package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catbot/internal/testutil"
	"catbot/pkg/models"
)

func newManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	m, err := NewManager(
		filepath.Join(root, "downloads"),
		filepath.Join(root, "user_content"),
		filepath.Join(root, "posted"),
	)
	require.NoError(t, err)
	return m, root
}

func TestNewManagerCreatesDirectories(t *testing.T) {
	m, _ := newManager(t)

	dirs := m.Directories()
	assert.True(t, dirs["downloads"])
	assert.True(t, dirs["user_content"])
	assert.True(t, dirs["archive"])
}

func TestPathForSanitizes(t *testing.T) {
	m, root := newManager(t)

	assert.Equal(t, filepath.Join(root, "downloads", "3141_592.mp4"), m.PathFor("3141/592", "MP4"))
	assert.Equal(t, filepath.Join(root, "downloads", "media.jpg"), m.PathFor("..", ".jpg"))
}

func copyFrom(r io.Reader) func(io.Writer) (int64, error) {
	return func(w io.Writer) (int64, error) { return io.Copy(w, r) }
}

func TestSaveRenamesAcceptedDownload(t *testing.T) {
	m, _ := newManager(t)

	var seen string
	path, n, err := m.Save("123", copyFrom(bytes.NewReader(testutil.JPEG(2048))), func(partial string, size int64) (string, error) {
		seen = partial
		kind, err := Detect(partial)
		return kind.Extension, err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2048), n)
	assert.Equal(t, m.PathFor("123", ".jpg"), path)
	assert.True(t, testutil.Exists(path))
	assert.Equal(t, m.PathFor("123", "part"), seen)
	assert.False(t, testutil.Exists(seen))
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n > 0 {
		r.n--
		return copy(p, "abc"), nil
	}
	return 0, errors.New("connection reset")
}

func TestSaveFailureLeavesNothing(t *testing.T) {
	m, _ := newManager(t)

	_, _, err := m.Save("123", copyFrom(&failingReader{n: 2}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.False(t, testutil.Exists(m.PathFor("123", "part")))

	_, _, err = m.Save("456", copyFrom(bytes.NewReader(testutil.Text(64))), func(string, int64) (string, error) {
		return "", errors.New("not media")
	})
	require.Error(t, err)
	assert.False(t, testutil.Exists(m.PathFor("456", "part")))
	entries, err := os.ReadDir(m.DownloadsDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPendingListsLeftovers(t *testing.T) {
	m, _ := newManager(t)
	testutil.WriteFile(t, m.DownloadsDir(), "111.mp4", testutil.MP4(100))
	testutil.WriteFile(t, m.DownloadsDir(), "111.json", []byte("{}"))
	testutil.WriteFile(t, m.DownloadsDir(), "222.jpg", testutil.JPEG(100))
	testutil.WriteFile(t, m.DownloadsDir(), "333.mp4.tmp", testutil.MP4(10))
	testutil.WriteFile(t, m.DownloadsDir(), "nested/444.jpg", testutil.JPEG(10))

	pending, err := m.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)

	ids := []string{pending[0].MediaID, pending[1].MediaID}
	assert.ElementsMatch(t, []string{"111", "222"}, ids)
}

func TestUserContentOldestFirstWithContentIDs(t *testing.T) {
	m, _ := newManager(t)
	newer := testutil.WriteFile(t, m.UserContentDir(), "videos/b.mp4", testutil.MP4(300))
	older := testutil.WriteFile(t, m.UserContentDir(), "images/a.jpg", testutil.JPEG(300))
	testutil.WriteFile(t, m.UserContentDir(), "notes.txt", testutil.Text(20))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	files, err := m.UserContent()
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, older, files[0].Path)
	assert.Equal(t, models.MediaTypeImage, files[0].Type)
	assert.Equal(t, models.OriginUser, files[0].Origin)
	assert.True(t, strings.HasPrefix(files[0].MediaID, "user-"))
	assert.Len(t, files[0].MediaID, len("user-")+16)
	assert.Equal(t, newer, files[1].Path)
	assert.NotEqual(t, files[0].MediaID, files[1].MediaID)
}

func TestContentIDDependsOnlyOnBytes(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "a.jpg", testutil.JPEG(500))
	b := testutil.WriteFile(t, dir, "renamed.jpg", testutil.JPEG(500))

	idA, err := ContentID(a)
	require.NoError(t, err)
	idB, err := ContentID(b)
	require.NoError(t, err)
	assert.Equal(t, idA, idB)
}

func TestArchiveMovesFile(t *testing.T) {
	m, _ := newManager(t)
	path := testutil.WriteFile(t, m.UserContentDir(), "cat.jpg", testutil.JPEG(100))

	dest, err := m.Archive(models.MediaFile{Path: path})
	require.NoError(t, err)

	assert.False(t, testutil.Exists(path))
	assert.True(t, testutil.Exists(dest))
	assert.Equal(t, m.ArchiveDir(), filepath.Dir(dest))
	assert.True(t, strings.HasSuffix(dest, "_cat.jpg"))
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		data    []byte
		want    models.MediaType
		ext     string
		wantErr bool
	}{
		{"jpeg", testutil.JPEG(1024), models.MediaTypeImage, "jpg", false},
		{"png", testutil.PNG(1024), models.MediaTypeImage, "png", false},
		{"mp4", testutil.MP4(1024), models.MediaTypeVideo, "mp4", false},
		{"text", testutil.Text(1024), "", "", true},
		{"tiny", []byte{0xFF}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteFile(t, dir, tt.name+".bin", tt.data)
			kind, err := Detect(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind.Type)
			assert.Equal(t, tt.ext, kind.Extension)
			assert.NotEmpty(t, kind.MIME)
		})
	}
}
