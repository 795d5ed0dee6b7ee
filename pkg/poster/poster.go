package poster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catbot/pkg/config"
	errs "catbot/pkg/errors"
	"catbot/pkg/logger"
	"catbot/pkg/models"
	"catbot/pkg/retry"
	"catbot/pkg/staging"
)

// ErrLedger marks a post that went out but could not be added to the ledger
var ErrLedger = errors.New("post ledger update failed")

// Publisher creates and publishes media containers
type Publisher interface {
	CreateContainer(ctx context.Context, mediaURL string, mediaType models.MediaType, caption string) (string, error)
	WaitForContainer(ctx context.Context, containerID string) error
	Publish(ctx context.Context, containerID string) (string, error)
}

// Stager exposes a local file at a public URL
type Stager interface {
	Stage(ctx context.Context, file models.MediaFile) (staging.Object, error)
	Remove(ctx context.Context, key string) error
}

// Ledger records media ids that were posted
type Ledger interface {
	Append(mediaID string, postedAt time.Time) error
}

// Recorder stores post records
type Recorder interface {
	RecordPost(ctx context.Context, rec *models.PostRecord) error
}

// Options controls posting behaviour
type Options struct {
	TestingMode bool
	MaxAttempts int
	Backoff     retry.BackoffStrategy
}

// OptionsFromConfig derives options from the posting config. MaxRetries
// counts retries, so a value of 3 allows 4 attempts.
func OptionsFromConfig(cfg config.PostingConfig) Options {
	return Options{
		TestingMode: cfg.TestingMode,
		MaxAttempts: cfg.MaxRetries + 1,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    cfg.RetryDelay,
			MaxDelay:     cfg.MaxRetryDelay,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
	}
}

// Result describes a finished post
type Result struct {
	Outcome     models.Outcome
	PublishedID string
	ContainerID string
}

// Poster publishes one file with its caption
type Poster struct {
	publisher Publisher
	stager    Stager
	ledger    Ledger
	recorder  Recorder
	opts      Options
	logger    logger.Logger
}

// New creates a poster. publisher and stager may be nil in testing mode.
func New(publisher Publisher, stager Stager, ledger Ledger, recorder Recorder, opts Options, log logger.Logger) *Poster {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.DefaultExponentialBackoff()
	}
	return &Poster{
		publisher: publisher,
		stager:    stager,
		ledger:    ledger,
		recorder:  recorder,
		opts:      opts,
		logger:    log.WithField("component", "poster"),
	}
}

// TestingMode reports whether posts are only simulated
func (p *Poster) TestingMode() bool { return p.opts.TestingMode }

// Post publishes file. Rate limits and transient failures are retried
// within the configured bound; authentication failures are returned at
// once. Every attempt leaves a post record, and only a successful or
// simulated post is added to the ledger.
func (p *Poster) Post(ctx context.Context, file models.MediaFile, caption string) (Result, error) {
	rec := &models.PostRecord{
		MediaID: file.MediaID,
		Type:    file.Type,
		Account: file.Account,
		Caption: caption,
	}

	if p.opts.TestingMode {
		p.logger.InfoWithFields("testing mode: simulating post", map[string]interface{}{
			"media_id":   file.MediaID,
			"media_type": string(file.Type),
			"path":       file.Path,
			"caption":    truncate(caption, 100),
		})
		rec.Outcome = models.OutcomeSimulated
		if err := p.finish(ctx, rec); err != nil {
			return Result{Outcome: models.OutcomeSimulated}, err
		}
		return Result{Outcome: models.OutcomeSimulated}, nil
	}

	if p.publisher == nil || p.stager == nil {
		return Result{}, errs.New(errs.ErrorTypeConfig, 0, "publishing is not configured")
	}

	res, err := p.publish(ctx, file, caption)
	if err != nil {
		rec.Outcome = models.OutcomeFailure
		rec.Error = err.Error()
		p.record(ctx, rec)
		p.logger.WithError(err).ErrorWithFields("post failed", map[string]interface{}{
			"media_id": file.MediaID,
			"fatal":    errs.IsFatal(err),
		})
		return Result{Outcome: models.OutcomeFailure}, err
	}

	rec.Outcome = models.OutcomeSuccess
	rec.PublishedID = res.PublishedID
	if err := p.finish(ctx, rec); err != nil {
		return res, err
	}
	return res, nil
}

func (p *Poster) publish(ctx context.Context, file models.MediaFile, caption string) (Result, error) {
	obj, err := retry.DoWithResult(func() (staging.Object, error) {
		return p.stager.Stage(ctx, file)
	}, p.retryConfig(ctx, "stage"))
	if err != nil {
		return Result{}, fmt.Errorf("stage media: %w", err)
	}
	defer p.unstage(ctx, obj.Key)

	containerID, err := retry.DoWithResult(func() (string, error) {
		return p.publisher.CreateContainer(ctx, obj.URL, file.Type, caption)
	}, p.retryConfig(ctx, "create container"))
	if err != nil {
		return Result{}, fmt.Errorf("create container: %w", err)
	}

	if file.Type == models.MediaTypeVideo {
		if err := p.publisher.WaitForContainer(ctx, containerID); err != nil {
			return Result{ContainerID: containerID}, fmt.Errorf("wait for container: %w", err)
		}
	}

	publishedID, err := retry.DoWithResult(func() (string, error) {
		return p.publisher.Publish(ctx, containerID)
	}, p.retryConfig(ctx, "publish"))
	if err != nil {
		return Result{ContainerID: containerID}, fmt.Errorf("publish: %w", err)
	}

	p.logger.InfoWithFields("post published", map[string]interface{}{
		"media_id":     file.MediaID,
		"published_id": publishedID,
	})
	return Result{Outcome: models.OutcomeSuccess, PublishedID: publishedID, ContainerID: containerID}, nil
}

func (p *Poster) retryConfig(ctx context.Context, operation string) *retry.Config {
	return &retry.Config{
		MaxAttempts: p.opts.MaxAttempts,
		Backoff:     p.opts.Backoff,
		RetryIf:     errs.IsRetryable,
		Context:     ctx,
		Logger:      p.logger,
		Operation:   operation,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			if errs.Is(err, errs.ErrorTypeRateLimit) {
				logger.LogRateLimit(p.logger, operation, attempt, delay)
			}
		},
	}
}

// unstage removes the staged object once the platform has fetched it
func (p *Poster) unstage(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.stager.Remove(ctx, key); err != nil {
		p.logger.WithError(err).WarnWithFields("failed to remove staged object", map[string]interface{}{
			"key": key,
		})
	}
}

// finish appends to the ledger, then writes the post record
func (p *Poster) finish(ctx context.Context, rec *models.PostRecord) error {
	rec.PostedAt = time.Now()
	if err := p.ledger.Append(rec.MediaID, rec.PostedAt); err != nil {
		p.logger.WithError(err).ErrorWithFields("failed to update post ledger", map[string]interface{}{
			"media_id":     rec.MediaID,
			"published_id": rec.PublishedID,
			"outcome":      string(rec.Outcome),
		})
		rec.Error = "ledger: " + err.Error()
		p.record(ctx, rec)
		return fmt.Errorf("%w for %s: %w", ErrLedger, rec.MediaID, err)
	}
	p.record(ctx, rec)
	return nil
}

func (p *Poster) record(ctx context.Context, rec *models.PostRecord) {
	if p.recorder == nil {
		return
	}
	if rec.PostedAt.IsZero() {
		rec.PostedAt = time.Now()
	}
	if err := p.recorder.RecordPost(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.WithError(err).Warn("failed to store post record")
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
