package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"catbot/pkg/logger"
	"catbot/pkg/metadata"
	"catbot/pkg/models"
	"catbot/pkg/retry"
)

// Cleaner deletes posted files and their companions
type Cleaner struct {
	attempts int
	backoff  retry.BackoffStrategy
	remove   func(string) error
	logger   logger.Logger
}

// New creates a cleaner that tries each delete three times, waiting 2s,
// then 4s between attempts.
func New(log logger.Logger) *Cleaner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Cleaner{
		attempts: 3,
		backoff: &retry.LinearBackoff{
			BaseDelay: 2 * time.Second,
			Increment: 2 * time.Second,
		},
		remove: os.Remove,
		logger: log.WithField("component", "cleanup"),
	}
}

// Companions returns the files deleted along with path: its sidecar and,
// for videos, a same-stem .jpg thumbnail.
func Companions(file models.MediaFile) []string {
	paths := []string{metadata.SidecarPath(file.Path)}
	if file.Type == models.MediaTypeVideo {
		paths = append(paths, strings.TrimSuffix(file.Path, filepath.Ext(file.Path))+".jpg")
	}
	return paths
}

// Remove deletes file and its companions. Failures are logged as warnings
// and returned joined; callers are expected to carry on.
func (c *Cleaner) Remove(ctx context.Context, file models.MediaFile) error {
	var failures []error
	for _, path := range append([]string{file.Path}, Companions(file)...) {
		if err := c.removeWithRetry(ctx, path); err != nil {
			c.logger.WithError(err).WarnWithFields("could not delete file, leaving it behind", map[string]interface{}{
				"path": path,
			})
			failures = append(failures, err)
		}
	}
	if len(failures) == 0 {
		c.logger.DebugWithFields("cleaned up media", map[string]interface{}{
			"media_id": file.MediaID,
			"path":     file.Path,
		})
	}
	return errors.Join(failures...)
}

func (c *Cleaner) removeWithRetry(ctx context.Context, path string) error {
	return retry.Do(func() error {
		err := c.remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}, &retry.Config{
		MaxAttempts: c.attempts,
		Backoff:     c.backoff,
		RetryIf:     func(err error) bool { return err != nil },
		Context:     ctx,
		Logger:      c.logger,
		Operation:   "delete " + filepath.Base(path),
	})
}

// SweepStale deletes files in dir last modified before now-maxAge and
// returns how many were removed. Orphaned sidecars go too.
func (c *Cleaner) SweepStale(ctx context.Context, dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := c.removeWithRetry(ctx, path); err != nil {
			c.logger.WithError(err).WarnWithFields("could not delete stale file", map[string]interface{}{
				"path": path,
			})
			continue
		}
		removed++
	}

	orphans, err := metadata.CleanOrphaned(dir)
	if err != nil {
		c.logger.WithError(err).Warn("failed to remove orphaned sidecars")
	}
	removed += orphans

	if removed > 0 {
		c.logger.InfoWithFields("swept stale downloads", map[string]interface{}{
			"dir":     dir,
			"removed": removed,
			"max_age": maxAge.String(),
		})
	}
	return removed, nil
}
