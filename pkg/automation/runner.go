package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"catbot/internal/downloader"
	"catbot/pkg/caption"
	"catbot/pkg/cleanup"
	"catbot/pkg/config"
	errs "catbot/pkg/errors"
	"catbot/pkg/fetcher"
	"catbot/pkg/graph"
	"catbot/pkg/history"
	"catbot/pkg/instagram"
	"catbot/pkg/ledger"
	"catbot/pkg/logger"
	"catbot/pkg/models"
	"catbot/pkg/poster"
	"catbot/pkg/ratelimit"
	"catbot/pkg/staging"
	"catbot/pkg/storage"
)

const (
	ModeTesting    = "testing"
	ModeProduction = "production"

	quotaWindow = 24 * time.Hour
)

// ErrBusy is returned by Run while another cycle is in progress
var ErrBusy = errors.New("a cycle is already running")

// Fetcher finds and downloads the next candidate
type Fetcher interface {
	FetchOne(ctx context.Context) (fetcher.Outcome, error)
}

// CaptionWriter produces a caption for a file. It never fails.
type CaptionWriter interface {
	Generate(ctx context.Context, req caption.Request) caption.Result
	Enabled() bool
}

// Publisher posts a file with its caption
type Publisher interface {
	Post(ctx context.Context, file models.MediaFile, caption string) (poster.Result, error)
}

// Cleaner removes local files once they are no longer needed
type Cleaner interface {
	Remove(ctx context.Context, file models.MediaFile) error
	SweepStale(ctx context.Context, dir string, maxAge time.Duration) (int, error)
}

// History stores post and run records
type History interface {
	CountPostsSince(ctx context.Context, since time.Time, outcome models.Outcome) (int, error)
	RecentPosts(ctx context.Context, limit int) ([]models.PostRecord, error)
	RecordRun(ctx context.Context, rec *models.RunRecord) error
	LastRun(ctx context.Context) (*models.RunRecord, error)
}

// CredentialValidator checks the publishing credentials before a live cycle
type CredentialValidator interface {
	ValidateCredentials(ctx context.Context) (*graph.Account, error)
}

// Deps are the components a runner drives
type Deps struct {
	Fetcher   Fetcher
	Captions  CaptionWriter
	Poster    Publisher
	Cleaner   Cleaner
	Storage   *storage.Manager
	Ledger    *ledger.Ledger
	History   History
	Validator CredentialValidator
}

// Options controls a runner
type Options struct {
	TestingMode bool
	DailyQuota  int
	StaleAfter  time.Duration
	Username    string
}

// Runner executes one bot cycle at a time
type Runner struct {
	deps    Deps
	opts    Options
	logger  logger.Logger
	running sync.Mutex
	closers []func() error

	validated bool
}

// New wires the full component stack from cfg. Outside testing mode the
// publishing account and staging bucket must be configured.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runner, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if !cfg.Posting.TestingMode {
		if cfg.Instagram.AccessToken == "" || cfg.Instagram.AccountID == "" {
			return nil, errs.New(errs.ErrorTypeConfig, 0, "INSTAGRAM_ACCESS_TOKEN and INSTAGRAM_ACCOUNT_ID are required outside testing mode")
		}
		if !cfg.Staging.Enabled() {
			return nil, errs.New(errs.ErrorTypeConfig, 0, "STAGING_BUCKET and STAGING_PUBLIC_URL are required outside testing mode")
		}
	}

	store, err := storage.NewManager(cfg.Storage.Downloads(), cfg.Storage.UserContent(), cfg.Storage.Archive())
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "prepare data directories")
	}
	posted, err := ledger.Open(cfg.Storage.Ledger(), log)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "open post ledger")
	}
	hist, err := history.Open(cfg.Storage.History())
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "open history database")
	}

	limiter := ratelimit.NewPerMinute(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
	source := instagram.NewClient(cfg.Source, limiter, log)

	dlCfg := downloader.DefaultConfig()
	dlCfg.Attempts = cfg.Source.DownloadAttempts
	dl := downloader.New(source, store, dlCfg, log)

	var (
		publisher poster.Publisher
		stager    poster.Stager
		validator CredentialValidator
	)
	if !cfg.Posting.TestingMode {
		gc := graph.NewClient(cfg.Instagram, log)
		publisher = gc
		validator = gc

		st, err := staging.New(ctx, cfg.Staging, log)
		if err != nil {
			hist.Close()
			return nil, err
		}
		stager = st
	}

	deps := Deps{
		Fetcher:   fetcher.New(source, dl, posted, fetcher.OptionsFromConfig(cfg.Source), log),
		Captions:  caption.New(cfg.Caption, log),
		Poster:    poster.New(publisher, stager, posted, hist, poster.OptionsFromConfig(cfg.Posting), log),
		Cleaner:   cleanup.New(log),
		Storage:   store,
		Ledger:    posted,
		History:   hist,
		Validator: validator,
	}
	r := NewWithDeps(deps, Options{
		TestingMode: cfg.Posting.TestingMode,
		DailyQuota:  cfg.Posting.DailyQuota,
		StaleAfter:  cfg.Storage.StaleAfter,
		Username:    cfg.Instagram.Username,
	}, log)
	r.closers = append(r.closers, hist.Close)
	return r, nil
}

// NewWithDeps creates a runner over existing components
func NewWithDeps(deps Deps, opts Options, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		deps:   deps,
		opts:   opts,
		logger: log.WithField("component", "runner"),
	}
}

// Close releases the history database
func (r *Runner) Close() error {
	var errList []error
	for _, c := range r.closers {
		errList = append(errList, c())
	}
	r.closers = nil
	return errors.Join(errList...)
}

// Mode returns "testing" or "production"
func (r *Runner) Mode() string {
	if r.opts.TestingMode {
		return ModeTesting
	}
	return ModeProduction
}

// Run executes one cycle. A report is always returned unless another
// cycle is running; the error is non-nil only for configuration and
// authentication failures.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if !r.running.TryLock() {
		return nil, ErrBusy
	}
	defer r.running.Unlock()

	rep := &Report{StartedAt: time.Now(), Mode: r.Mode()}
	logger.LogComponentStart(r.logger, "cycle", map[string]interface{}{
		"mode":        rep.Mode,
		"daily_quota": r.opts.DailyQuota,
	})

	err := r.cycle(ctx, rep)
	rep.FinishedAt = time.Now()

	switch {
	case err == nil:
		if rep.Status == "" {
			rep.Status = models.RunSuccess
		}
	case errs.IsFatal(err):
		rep.Status = models.RunError
		rep.Message = "cycle aborted"
		rep.Error = err.Error()
	default:
		rep.Status = models.RunFailed
		if rep.Message == "" {
			rep.Message = "cycle failed"
		}
		rep.Error = err.Error()
	}

	r.recordRun(ctx, rep)
	r.logger.InfoWithFields("cycle finished", map[string]interface{}{
		"status":   string(rep.Status),
		"message":  rep.Message,
		"posted":   rep.Posted,
		"media_id": rep.MediaID,
		"duration": rep.Duration().String(),
	})

	if errs.IsFatal(err) {
		return rep, err
	}
	return rep, nil
}

func (r *Runner) cycle(ctx context.Context, rep *Report) error {
	if err := r.validate(ctx); err != nil {
		return err
	}

	reached, err := r.quotaReached(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("could not check daily quota, continuing")
	}
	if reached {
		rep.Message = fmt.Sprintf("daily quota of %d posts reached", r.opts.DailyQuota)
		return nil
	}

	r.sweep(ctx)

	file, err := r.nextUserContent()
	if err != nil {
		r.logger.WithError(err).Warn("could not list user content")
	}
	if file != nil {
		return r.post(ctx, *file, rep)
	}

	outcome, err := r.deps.Fetcher.FetchOne(ctx)
	if err != nil {
		rep.Message = "could not fetch new content"
		return err
	}
	if !outcome.Found() {
		rep.Message = "no new content to post"
		return nil
	}
	return r.post(ctx, *outcome.File, rep)
}

// validate checks publishing credentials once per runner
func (r *Runner) validate(ctx context.Context) error {
	if r.validated || r.deps.Validator == nil {
		return nil
	}
	account, err := r.deps.Validator.ValidateCredentials(ctx)
	if err != nil {
		if errs.IsFatal(err) {
			return fmt.Errorf("validate publishing credentials: %w", err)
		}
		r.logger.WithError(err).Warn("could not validate publishing credentials, continuing")
		return nil
	}
	r.validated = true
	r.logger.InfoWithFields("publishing account verified", map[string]interface{}{
		"account_id": account.ID,
		"username":   account.Username,
	})
	return nil
}

func (r *Runner) quotaOutcome() models.Outcome {
	if r.opts.TestingMode {
		return models.OutcomeSimulated
	}
	return models.OutcomeSuccess
}

func (r *Runner) quotaReached(ctx context.Context) (bool, error) {
	if r.opts.DailyQuota <= 0 || r.deps.History == nil {
		return false, nil
	}
	n, err := r.deps.History.CountPostsSince(ctx, time.Now().Add(-quotaWindow), r.quotaOutcome())
	if err != nil {
		return false, err
	}
	return n >= r.opts.DailyQuota, nil
}

func (r *Runner) sweep(ctx context.Context) {
	if r.opts.StaleAfter <= 0 || r.deps.Cleaner == nil || r.deps.Storage == nil {
		return
	}
	n, err := r.deps.Cleaner.SweepStale(ctx, r.deps.Storage.DownloadsDir(), r.opts.StaleAfter)
	if err != nil {
		r.logger.WithError(err).Warn("stale download sweep incomplete")
	}
	if n > 0 {
		r.logger.WithField("removed", n).Info("removed stale downloads")
	}
}

// nextUserContent returns the oldest user supplied file not yet posted
func (r *Runner) nextUserContent() (*models.MediaFile, error) {
	if r.deps.Storage == nil {
		return nil, nil
	}
	files, err := r.deps.Storage.UserContent()
	if err != nil {
		return nil, err
	}
	for i := range files {
		if r.deps.Ledger != nil && r.deps.Ledger.Contains(files[i].MediaID) {
			continue
		}
		return &files[i], nil
	}
	return nil, nil
}

func (r *Runner) post(ctx context.Context, file models.MediaFile, rep *Report) error {
	rep.MediaID = file.MediaID
	log := r.logger.WithFields(map[string]interface{}{
		"media_id": file.MediaID,
		"origin":   string(file.Origin),
	})

	text := r.deps.Captions.Generate(ctx, caption.RequestFor(file))
	rep.CaptionGenerated = text.Generated
	if text.Err != nil {
		log.WithError(text.Err).Warn("using fallback caption")
	}

	res, err := r.deps.Poster.Post(ctx, file, text.Text)
	posted := res.Outcome == models.OutcomeSuccess || res.Outcome == models.OutcomeSimulated
	if posted {
		rep.Posted = 1
	}
	if posted && errors.Is(err, poster.ErrLedger) {
		r.retryLedger(file, res, err, rep, log)
		err = nil
	}

	r.dispose(ctx, file, res.Outcome, log)

	if err != nil {
		rep.Message = "failed to post " + file.MediaID
		return err
	}
	if res.Outcome == models.OutcomeSimulated {
		rep.Message = "simulated post of " + file.MediaID
	} else {
		rep.Message = "posted " + file.MediaID
	}
	rep.PublishedID = res.PublishedID
	return nil
}

// retryLedger gives the ledger one more chance after a post went out. The
// cycle still counts as posted; a second failure is only reported, since
// the item can no longer be unposted.
func (r *Runner) retryLedger(file models.MediaFile, res poster.Result, postErr error, rep *Report, log logger.Logger) {
	fields := map[string]interface{}{
		"published_id": res.PublishedID,
		"outcome":      string(res.Outcome),
	}
	if r.deps.Ledger != nil {
		if err := r.deps.Ledger.Append(file.MediaID, time.Now()); err == nil {
			log.WarnWithFields("post ledger updated on second attempt", fields)
			return
		}
	}
	log.WithError(postErr).ErrorWithFields("posted but missing from ledger, it may be selected again", fields)
	rep.Error = postErr.Error()
}

// dispose deletes a downloaded file once the poster is done with it.
// User content is archived after a real post and otherwise left in place.
func (r *Runner) dispose(ctx context.Context, file models.MediaFile, outcome models.Outcome, log logger.Logger) {
	if file.Origin == models.OriginUser {
		if outcome != models.OutcomeSuccess || r.deps.Storage == nil {
			return
		}
		dest, err := r.deps.Storage.Archive(file)
		if err != nil {
			log.WithError(err).Warn("could not archive user content")
			return
		}
		log.WithField("archived_to", dest).Info("user content archived")
		return
	}
	if r.deps.Cleaner == nil {
		return
	}
	// Errors are already logged by the cleaner.
	_ = r.deps.Cleaner.Remove(ctx, file)
}

func (r *Runner) recordRun(ctx context.Context, rep *Report) {
	if r.deps.History == nil {
		return
	}
	rec := rep.Record()
	if err := r.deps.History.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.WithError(err).Warn("failed to store run record")
	}
}
