package automation

import (
	"math"
	"time"

	"catbot/pkg/models"
)

// Report describes the outcome of one cycle
type Report struct {
	Status           models.RunStatus `json:"status"`
	Message          string           `json:"message"`
	StartedAt        time.Time        `json:"start_time"`
	FinishedAt       time.Time        `json:"end_time"`
	Mode             string           `json:"execution_mode"`
	Posted           int              `json:"posted"`
	MediaID          string           `json:"media_id,omitempty"`
	PublishedID      string           `json:"published_id,omitempty"`
	CaptionGenerated bool             `json:"caption_generated"`
	Error            string           `json:"error,omitempty"`
}

// Duration of the cycle
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// DurationSeconds is the duration rounded to one decimal place
func (r *Report) DurationSeconds() float64 {
	return math.Round(r.Duration().Seconds()*10) / 10
}

// Record converts the report into a run record for the history store
func (r *Report) Record() *models.RunRecord {
	return &models.RunRecord{
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Status:     r.Status,
		Message:    r.Message,
		Posted:     r.Posted,
		MediaID:    r.MediaID,
		Mode:       r.Mode,
		Error:      r.Error,
	}
}
