package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"catbot/pkg/models"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Manager owns the bot's working directories: downloads waiting to be
// posted, user supplied content, and the archive of posted user content.
type Manager struct {
	downloadsDir   string
	userContentDir string
	archiveDir     string
	mu             sync.Mutex
}

// NewManager creates a storage manager, creating any missing directory
func NewManager(downloadsDir, userContentDir, archiveDir string) (*Manager, error) {
	for _, dir := range []string{downloadsDir, userContentDir, archiveDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &Manager{
		downloadsDir:   downloadsDir,
		userContentDir: userContentDir,
		archiveDir:     archiveDir,
	}, nil
}

func (m *Manager) DownloadsDir() string   { return m.downloadsDir }
func (m *Manager) UserContentDir() string { return m.userContentDir }
func (m *Manager) ArchiveDir() string     { return m.archiveDir }

// Directories reports whether each managed directory currently exists
func (m *Manager) Directories() map[string]bool {
	out := make(map[string]bool, 3)
	for name, dir := range map[string]string{
		"downloads":    m.downloadsDir,
		"user_content": m.userContentDir,
		"archive":      m.archiveDir,
	} {
		if dir == "" {
			continue
		}
		info, err := os.Stat(dir)
		out[name] = err == nil && info.IsDir()
	}
	return out
}

// PathFor returns the download path for a media id and extension
func (m *Manager) PathFor(mediaID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(m.downloadsDir, SafeName(mediaID)+strings.ToLower(ext))
}

// SafeName strips characters that do not belong in a file name
func SafeName(s string) string {
	s = unsafeName.ReplaceAllString(s, "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "media"
	}
	return s
}

// Save streams a download for mediaID into a .part file in the downloads
// directory. accept inspects the finished part file and returns the
// extension it should be stored under; only then is it renamed into place.
// When writing or accepting fails the part file is removed, so a crash or
// a bad transfer never leaves a file under a media name.
func (m *Manager) Save(mediaID string, write func(w io.Writer) (int64, error), accept func(partial string, size int64) (string, error)) (string, int64, error) {
	partial := m.PathFor(mediaID, "part")
	out, err := os.Create(partial)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	n, err := write(out)
	closeErr := out.Close()

	if err != nil {
		os.Remove(partial)
		return "", n, err
	}
	if closeErr != nil {
		os.Remove(partial)
		return "", n, fmt.Errorf("failed to close file: %w", closeErr)
	}

	ext := ""
	if accept != nil {
		if ext, err = accept(partial, n); err != nil {
			os.Remove(partial)
			return "", n, err
		}
	}

	path := m.PathFor(mediaID, ext)
	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return "", n, fmt.Errorf("failed to move download into place: %w", err)
	}
	return path, n, nil
}

// Pending lists media files left in the downloads directory
func (m *Manager) Pending() ([]models.MediaFile, error) {
	files, err := scanMedia(m.downloadsDir, false)
	if err != nil {
		return nil, err
	}
	out := make([]models.MediaFile, 0, len(files))
	for _, f := range files {
		out = append(out, models.MediaFile{
			Path:    f.path,
			MediaID: strings.TrimSuffix(filepath.Base(f.path), filepath.Ext(f.path)),
			Type:    f.mediaType,
			Size:    f.size,
			Origin:  models.OriginSource,
		})
	}
	return out, nil
}

// UserContent lists postable files in the user content directory, oldest
// first. Each file's media id is derived from its contents.
func (m *Manager) UserContent() ([]models.MediaFile, error) {
	if m.userContentDir == "" {
		return nil, nil
	}
	files, err := scanMedia(m.userContentDir, true)
	if err != nil {
		return nil, err
	}

	out := make([]models.MediaFile, 0, len(files))
	for _, f := range files {
		id, err := ContentID(f.path)
		if err != nil {
			return nil, err
		}
		out = append(out, models.MediaFile{
			Path:    f.path,
			MediaID: id,
			Type:    f.mediaType,
			Size:    f.size,
			Origin:  models.OriginUser,
		})
	}
	return out, nil
}

// ContentID returns "user-" followed by the first 16 hex characters of the
// SHA-256 of the file's contents.
func ContentID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return "user-" + hex.EncodeToString(h.Sum(nil))[:16], nil
}

// Archive moves a posted user content file into the archive directory and
// returns its new path.
func (m *Manager) Archive(file models.MediaFile) (string, error) {
	if m.archiveDir == "" {
		return "", errors.New("no archive directory configured")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dest := filepath.Join(m.archiveDir, time.Now().UTC().Format("20060102-150405")+"_"+filepath.Base(file.Path))
	if err := os.Rename(file.Path, dest); err == nil {
		return dest, nil
	}

	// Rename fails across filesystems; fall back to copy and remove.
	if err := copyFile(file.Path, dest); err != nil {
		return "", err
	}
	if err := os.Remove(file.Path); err != nil {
		return dest, fmt.Errorf("archived copy written but original not removed: %w", err)
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

type scanned struct {
	path      string
	mediaType models.MediaType
	size      int64
	modTime   time.Time
}

// scanMedia lists image and video files in dir, oldest first
func scanMedia(dir string, recursive bool) ([]scanned, error) {
	var files []scanned

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		mediaType, ok := models.MediaTypeFromPath(path)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, scanned{path: path, mediaType: mediaType, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})
	return files, nil
}
