package automation

import (
	"context"
	"time"

	"catbot/pkg/models"
)

const recentPostLimit = 10

// Stats are the counters shown on the dashboard
type Stats struct {
	PendingDownloads int `json:"pending_downloads"`
	PendingUser      int `json:"pending_user_content"`
	LedgerSize       int `json:"posted_total"`
	PostsLast24h     int `json:"posts_last_24h"`
	DailyQuota       int `json:"daily_quota"`
}

// Status is a snapshot of the bot's state
type Status struct {
	TestingMode       bool                `json:"testing_mode"`
	Mode              string              `json:"execution_mode"`
	Username          string              `json:"username"`
	CaptionConfigured bool                `json:"gemini_api_configured"`
	Running           bool                `json:"running"`
	Stats             Stats               `json:"stats"`
	LastRun           *models.RunRecord   `json:"last_run"`
	RecentPosts       []models.PostRecord `json:"recent_posts"`
	Directories       map[string]bool     `json:"directories"`
}

// Status collects the current state. Individual lookups that fail are
// logged and left at their zero value.
func (r *Runner) Status(ctx context.Context) Status {
	st := Status{
		TestingMode: r.opts.TestingMode,
		Mode:        r.Mode(),
		Username:    r.opts.Username,
		Stats:       Stats{DailyQuota: r.opts.DailyQuota},
		RecentPosts: []models.PostRecord{},
		Directories: map[string]bool{},
	}
	if r.deps.Captions != nil {
		st.CaptionConfigured = r.deps.Captions.Enabled()
	}
	if r.running.TryLock() {
		r.running.Unlock()
	} else {
		st.Running = true
	}

	if r.deps.Storage != nil {
		st.Directories = r.deps.Storage.Directories()
		if pending, err := r.deps.Storage.Pending(); err == nil {
			st.Stats.PendingDownloads = len(pending)
		} else {
			r.logger.WithError(err).Warn("could not list pending downloads")
		}
		if files, err := r.nextUserContentCount(); err == nil {
			st.Stats.PendingUser = files
		}
	}
	if r.deps.Ledger != nil {
		st.Stats.LedgerSize = r.deps.Ledger.Len()
	}

	if r.deps.History != nil {
		if n, err := r.deps.History.CountPostsSince(ctx, time.Now().Add(-quotaWindow), r.quotaOutcome()); err == nil {
			st.Stats.PostsLast24h = n
		} else {
			r.logger.WithError(err).Warn("could not count recent posts")
		}
		if last, err := r.deps.History.LastRun(ctx); err == nil {
			st.LastRun = last
		}
		if posts, err := r.deps.History.RecentPosts(ctx, recentPostLimit); err == nil && posts != nil {
			st.RecentPosts = posts
		}
	}
	return st
}

func (r *Runner) nextUserContentCount() (int, error) {
	files, err := r.deps.Storage.UserContent()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if r.deps.Ledger == nil || !r.deps.Ledger.Contains(f.MediaID) {
			n++
		}
	}
	return n, nil
}
