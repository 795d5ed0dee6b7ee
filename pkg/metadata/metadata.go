package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"catbot/pkg/models"
)

var hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

// Sidecar is the source metadata stored next to a downloaded file
type Sidecar struct {
	MediaID   string           `json:"media_id"`
	Shortcode string           `json:"shortcode,omitempty"`
	Account   string           `json:"source_account"`
	URL       string           `json:"url"`
	MediaType models.MediaType `json:"media_type"`
	MIME      string           `json:"mime,omitempty"`
	FileSize  int64            `json:"file_size"`

	TakenAt      time.Time `json:"taken_at,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
	Attempts     int       `json:"download_attempts"`

	Caption  string   `json:"caption,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`

	LikeCount    int `json:"like_count"`
	CommentCount int `json:"comment_count"`
}

// FromCandidate builds the sidecar for a downloaded candidate
func FromCandidate(c models.Candidate, fileSize int64, mime string, attempts int) *Sidecar {
	return &Sidecar{
		MediaID:      c.MediaID,
		Shortcode:    c.Shortcode,
		Account:      c.Account,
		URL:          c.URL,
		MediaType:    c.Type,
		MIME:         mime,
		FileSize:     fileSize,
		TakenAt:      c.TakenAt,
		DownloadedAt: time.Now().UTC(),
		Attempts:     attempts,
		Caption:      c.Caption,
		Hashtags:     ExtractHashtags(c.Caption),
		LikeCount:    c.LikeCount,
		CommentCount: c.CommentCount,
	}
}

// SidecarPath returns the sidecar location for a media file: same stem, .json
func SidecarPath(mediaPath string) string {
	return strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + ".json"
}

// Save writes the sidecar next to mediaPath
func (s *Sidecar) Save(mediaPath string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(SidecarPath(mediaPath), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// Load reads the sidecar stored next to mediaPath
func Load(mediaPath string) (*Sidecar, error) {
	data, err := os.ReadFile(SidecarPath(mediaPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var s Sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &s, nil
}

// Exists checks if a sidecar exists for a media file
func Exists(mediaPath string) bool {
	_, err := os.Stat(SidecarPath(mediaPath))
	return err == nil
}

// ExtractHashtags returns the distinct hashtags in text, in order of
// appearance and lowercased.
func ExtractHashtags(text string) []string {
	matches := hashtagPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m)
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// TruncateCaption shortens a caption for display
func TruncateCaption(caption string, maxLength int) string {
	runes := []rune(caption)
	if maxLength <= 3 || len(runes) <= maxLength {
		return caption
	}
	return string(runes[:maxLength-3]) + "..."
}

// CleanOrphaned removes sidecars in directory whose media file is gone and
// returns how many were removed.
func CleanOrphaned(directory string) (int, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	stems := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".json" {
			continue
		}
		if _, ok := models.MediaTypeFromPath(e.Name()); ok {
			stems[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = true
		}
	}

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		if stems[strings.TrimSuffix(name, ".json")] {
			continue
		}
		if err := os.Remove(filepath.Join(directory, name)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove orphaned metadata %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}
