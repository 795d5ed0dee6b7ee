package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	errs "catbot/pkg/errors"
	"catbot/pkg/logger"
)

const currentVersion = 1

// Entry records that a media item has been posted
type Entry struct {
	MediaID  string    `json:"media_id"`
	PostedAt time.Time `json:"posted_at"`
}

// document is the on-disk shape of the ledger
type document struct {
	Version   int       `json:"version"`
	Entries   []Entry   `json:"entries"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ledger is the append-only record of posted media ids backed by a JSON
// file. Every Append rewrites the file atomically.
type Ledger struct {
	path   string
	mu     sync.RWMutex
	doc    document
	index  map[string]struct{}
	logger logger.Logger
}

// Open loads the ledger at path, starting empty when the file does not
// exist yet.
func Open(path string, log logger.Logger) (*Ledger, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	l := &Ledger{
		path:   path,
		doc:    document{Version: currentVersion},
		index:  make(map[string]struct{}),
		logger: log.WithField("component", "ledger"),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		l.logger.InfoWithFields("Starting new ledger", map[string]interface{}{"path": path})
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &l.doc); err != nil {
			// A corrupt ledger must never be read as an empty one.
			return nil, errs.Wrap(errs.ErrorTypeParsing, err, "ledger file is corrupt: "+path)
		}
	}

	// Collapse duplicates from hand edits, keeping the first occurrence.
	entries := l.doc.Entries[:0]
	for _, e := range l.doc.Entries {
		id := strings.TrimSpace(e.MediaID)
		if id == "" {
			continue
		}
		if _, seen := l.index[id]; seen {
			continue
		}
		e.MediaID = id
		l.index[id] = struct{}{}
		entries = append(entries, e)
	}
	l.doc.Entries = entries

	l.logger.InfoWithFields("Ledger loaded", map[string]interface{}{
		"path":    path,
		"entries": len(l.doc.Entries),
	})
	return l, nil
}

// Path returns the ledger file location
func (l *Ledger) Path() string { return l.path }

// Contains reports whether mediaID has been posted
func (l *Ledger) Contains(mediaID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.index[mediaID]
	return ok
}

// Len returns the number of posted ids
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.doc.Entries)
}

// Entries returns a copy of all entries in posting order
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.doc.Entries))
	copy(out, l.doc.Entries)
	return out
}

// Append records mediaID as posted at the given time. Appending an id that
// is already present is a no-op.
func (l *Ledger) Append(mediaID string, postedAt time.Time) error {
	mediaID = strings.TrimSpace(mediaID)
	if mediaID == "" {
		return errs.New(errs.ErrorTypeValidation, 0, "media id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.index[mediaID]; ok {
		l.logger.DebugWithFields("Media already in ledger", map[string]interface{}{"media_id": mediaID})
		return nil
	}

	l.doc.Entries = append(l.doc.Entries, Entry{MediaID: mediaID, PostedAt: postedAt.UTC()})
	if err := l.save(); err != nil {
		l.doc.Entries = l.doc.Entries[:len(l.doc.Entries)-1]
		return err
	}
	l.index[mediaID] = struct{}{}

	l.logger.InfoWithFields("Media recorded in ledger", map[string]interface{}{
		"media_id": mediaID,
		"entries":  len(l.doc.Entries),
	})
	return nil
}

// save writes the ledger to a temp file and renames it into place
func (l *Ledger) save() error {
	l.doc.Version = currentVersion
	l.doc.UpdatedAt = time.Now().UTC()

	tempPath := l.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary ledger file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&l.doc); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync ledger file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close ledger file: %w", err)
	}

	if err := os.Rename(tempPath, l.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}
	return nil
}
