// Package models holds the types passed between the bot's components.
package models

import (
	"path/filepath"
	"strings"
	"time"
)

// MediaType distinguishes images from videos
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// MediaTypeFromPath guesses the media type from a file extension
func MediaTypeFromPath(path string) (MediaType, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return MediaTypeImage, true
	case ".mp4", ".mov":
		return MediaTypeVideo, true
	default:
		return "", false
	}
}

// Origin tells where a file to post came from
type Origin string

const (
	OriginSource Origin = "source"
	OriginUser   Origin = "user_content"
)

// Candidate is a media item seen on a source account. It lives only for
// the duration of one cycle.
type Candidate struct {
	Account      string
	MediaID      string
	Shortcode    string
	Type         MediaType
	URL          string
	Caption      string
	LikeCount    int
	CommentCount int
	TakenAt      time.Time
}

// EngagementScore weighs comments above likes
func (c Candidate) EngagementScore() int {
	return c.LikeCount + 10*c.CommentCount
}

// MediaFile is a file on local disk waiting to be posted
type MediaFile struct {
	Path    string
	MediaID string
	Account string
	Type    MediaType
	Size    int64
	Origin  Origin
}

// Outcome of one publish attempt
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeSimulated Outcome = "simulated"
)

// PostRecord is an observability record of one publish attempt
type PostRecord struct {
	ID          int64     `json:"id"`
	PostedAt    time.Time `json:"posted_at"`
	MediaID     string    `json:"media_id"`
	Type        MediaType `json:"media_type"`
	Account     string    `json:"source_account,omitempty"`
	Caption     string    `json:"caption"`
	Outcome     Outcome   `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	PublishedID string    `json:"published_id,omitempty"`
}

// RunStatus is the final state of one cycle
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunError   RunStatus = "error"
)

// RunRecord summarizes one cycle
type RunRecord struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"start_time"`
	FinishedAt time.Time `json:"end_time"`
	Status     RunStatus `json:"status"`
	Message    string    `json:"message"`
	Posted     int       `json:"posted"`
	MediaID    string    `json:"media_id,omitempty"`
	Mode       string    `json:"execution_mode"`
	Error      string    `json:"error,omitempty"`
}

// Duration of the run
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
