package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"catbot/internal/testutil"
	"catbot/pkg/logger"
	"catbot/pkg/models"
	"catbot/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCleaner(log logger.Logger) *Cleaner {
	c := New(log)
	c.backoff = &retry.ConstantBackoff{Delay: 0}
	return c
}

func TestRemoveDeletesCompanions(t *testing.T) {
	dir := t.TempDir()
	video := testutil.WriteFile(t, dir, "v1.mp4", testutil.MP4(1024))
	sidecar := testutil.WriteFile(t, dir, "v1.json", []byte("{}"))
	thumb := testutil.WriteFile(t, dir, "v1.jpg", testutil.JPEG(100))
	other := testutil.WriteFile(t, dir, "v2.mp4", testutil.MP4(1024))

	c := newCleaner(logger.NewNopLogger())
	err := c.Remove(context.Background(), models.MediaFile{Path: video, MediaID: "v1", Type: models.MediaTypeVideo})
	require.NoError(t, err)

	assert.False(t, testutil.Exists(video))
	assert.False(t, testutil.Exists(sidecar))
	assert.False(t, testutil.Exists(thumb))
	assert.True(t, testutil.Exists(other))
}

func TestRemoveImageKeepsSameStemJPEGOnly(t *testing.T) {
	dir := t.TempDir()
	img := testutil.WriteFile(t, dir, "i1.png", testutil.PNG(1024))
	jpg := testutil.WriteFile(t, dir, "i1.jpg", testutil.JPEG(1024))

	c := newCleaner(logger.NewNopLogger())
	require.NoError(t, c.Remove(context.Background(), models.MediaFile{Path: img, Type: models.MediaTypeImage}))
	assert.False(t, testutil.Exists(img))
	assert.True(t, testutil.Exists(jpg), "images have no thumbnail companion")
}

func TestRemoveMissingFileIsFine(t *testing.T) {
	c := newCleaner(logger.NewNopLogger())
	err := c.Remove(context.Background(), models.MediaFile{Path: filepath.Join(t.TempDir(), "gone.jpg"), Type: models.MediaTypeImage})
	assert.NoError(t, err)
}

func TestRemoveRetriesThenWarns(t *testing.T) {
	log := logger.NewTestLogger()
	c := newCleaner(log)

	calls := map[string]int{}
	c.remove = func(path string) error {
		calls[path]++
		if filepath.Ext(path) == ".mp4" {
			return errors.New("file is locked")
		}
		return nil
	}

	err := c.Remove(context.Background(), models.MediaFile{Path: "downloads/x.mp4", Type: models.MediaTypeVideo})
	require.Error(t, err)
	assert.Equal(t, 3, calls["downloads/x.mp4"])
	assert.Equal(t, 1, calls["downloads/x.json"])
	assert.True(t, log.HasMessage("could not delete file, leaving it behind"))
}

// recordingBackoff notes the delays the wrapped strategy asks for without waiting
type recordingBackoff struct {
	inner  retry.BackoffStrategy
	delays []time.Duration
}

func (r *recordingBackoff) NextDelay(attempt int) time.Duration {
	r.delays = append(r.delays, r.inner.NextDelay(attempt))
	return 0
}

func TestRemoveWaitsBetweenAttempts(t *testing.T) {
	c := New(logger.NewNopLogger())
	rec := &recordingBackoff{inner: c.backoff}
	c.backoff = rec
	calls := 0
	c.remove = func(path string) error {
		if filepath.Ext(path) == ".jpg" {
			calls++
			return errors.New("locked")
		}
		return nil
	}

	err := c.Remove(context.Background(), models.MediaFile{Path: "x.jpg", Type: models.MediaTypeImage})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestRemoveRecoversFromTransientLock(t *testing.T) {
	c := newCleaner(logger.NewNopLogger())
	attempts := 0
	c.remove = func(path string) error {
		if filepath.Ext(path) == ".mp4" {
			attempts++
			if attempts < 2 {
				return errors.New("locked")
			}
		}
		return nil
	}

	assert.NoError(t, c.Remove(context.Background(), models.MediaFile{Path: "x.mp4", Type: models.MediaTypeVideo}))
	assert.Equal(t, 2, attempts)
}

func TestSweepStale(t *testing.T) {
	dir := t.TempDir()
	old := testutil.WriteFile(t, dir, "old.jpg", testutil.JPEG(100))
	oldSide := testutil.WriteFile(t, dir, "old.json", []byte("{}"))
	fresh := testutil.WriteFile(t, dir, "fresh.jpg", testutil.JPEG(100))
	orphan := testutil.WriteFile(t, dir, "orphan.json", []byte("{}"))

	past := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(oldSide, past, past))

	c := newCleaner(logger.NewNopLogger())
	removed, err := c.SweepStale(context.Background(), dir, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	assert.False(t, testutil.Exists(old))
	assert.False(t, testutil.Exists(oldSide))
	assert.False(t, testutil.Exists(orphan))
	assert.True(t, testutil.Exists(fresh))
}

func TestSweepStaleMissingDir(t *testing.T) {
	c := newCleaner(logger.NewNopLogger())
	n, err := c.SweepStale(context.Background(), filepath.Join(t.TempDir(), "nope"), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}
