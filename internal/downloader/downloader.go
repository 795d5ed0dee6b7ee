package downloader

import (
	"context"
	"fmt"
	"io"
	"time"

	errs "catbot/pkg/errors"
	"catbot/pkg/logger"
	"catbot/pkg/metadata"
	"catbot/pkg/models"
	"catbot/pkg/retry"
	"catbot/pkg/storage"
)

const (
	// MinVideoSize rejects truncated or placeholder videos
	MinVideoSize = 50 * 1024
	// MinImageSize rejects truncated or placeholder images
	MinImageSize = 1024
)

// MediaSource streams remote media into a writer
type MediaSource interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Config controls download validation and retries
type Config struct {
	Attempts     int
	Backoff      retry.BackoffStrategy
	MinVideoSize int64
	MinImageSize int64
}

// DefaultConfig retries three times, waiting 5s then 10s, capped at 30s
func DefaultConfig() Config {
	return Config{
		Attempts: 3,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:  5 * time.Second,
			MaxDelay:   30 * time.Second,
			Multiplier: 2.0,
		},
		MinVideoSize: MinVideoSize,
		MinImageSize: MinImageSize,
	}
}

// Downloader fetches a candidate into the downloads directory and checks
// that the result is a real image or video before handing it on.
type Downloader struct {
	source  MediaSource
	storage *storage.Manager
	config  Config
	logger  logger.Logger
}

// New creates a downloader
func New(source MediaSource, store *storage.Manager, cfg Config, log logger.Logger) *Downloader {
	if log == nil {
		log = logger.GetLogger()
	}
	def := DefaultConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = def.Backoff
	}
	if cfg.MinVideoSize <= 0 {
		cfg.MinVideoSize = def.MinVideoSize
	}
	if cfg.MinImageSize <= 0 {
		cfg.MinImageSize = def.MinImageSize
	}
	return &Downloader{
		source:  source,
		storage: store,
		config:  cfg,
		logger:  log.WithField("component", "downloader"),
	}
}

// Fetch downloads c, validates it and writes its sidecar
func (d *Downloader) Fetch(ctx context.Context, c models.Candidate) (models.MediaFile, error) {
	if c.URL == "" {
		return models.MediaFile{}, errs.New(errs.ErrorTypeValidation, 0, "candidate "+c.MediaID+" has no media URL")
	}

	attempts := 0
	file, err := retry.DoWithResult(func() (models.MediaFile, error) {
		attempts++
		return d.attempt(ctx, c)
	}, &retry.Config{
		MaxAttempts: d.config.Attempts,
		Backoff:     d.config.Backoff,
		RetryIf:     retryable,
		Context:     ctx,
		Logger:      d.logger,
		Operation:   "download " + c.MediaID,
	})
	logger.LogDownload(d.logger, c.Account, c.MediaID, string(c.Type), file.Size, err)
	if err != nil {
		return models.MediaFile{}, err
	}

	kind, _ := storage.Detect(file.Path)
	if err := metadata.FromCandidate(c, file.Size, kind.MIME, attempts).Save(file.Path); err != nil {
		d.logger.WarnWithFields("failed to write sidecar", map[string]interface{}{
			"media_id": c.MediaID,
			"error":    err.Error(),
		})
	}
	return file, nil
}

// retryable also retries validation failures: a short or mis-typed body is
// usually a truncated transfer or a transient error page.
func retryable(err error) bool {
	return retry.DefaultRetryIf(err) || errs.Is(err, errs.ErrorTypeValidation)
}

func (d *Downloader) attempt(ctx context.Context, c models.Candidate) (models.MediaFile, error) {
	var kind storage.Kind
	path, n, err := d.storage.Save(c.MediaID, func(w io.Writer) (int64, error) {
		return d.source.Download(ctx, c.URL, w)
	}, func(partial string, size int64) (string, error) {
		var err error
		kind, err = d.validate(partial, c.Type, size)
		return kind.Extension, err
	})
	if err != nil {
		return models.MediaFile{}, err
	}

	return models.MediaFile{
		Path:    path,
		MediaID: c.MediaID,
		Account: c.Account,
		Type:    kind.Type,
		Size:    n,
		Origin:  models.OriginSource,
	}, nil
}

func (d *Downloader) validate(path string, want models.MediaType, size int64) (storage.Kind, error) {
	kind, err := storage.Detect(path)
	if err != nil {
		return storage.Kind{}, errs.Wrap(errs.ErrorTypeValidation, err, "downloaded file rejected")
	}
	if want != "" && kind.Type != want {
		return storage.Kind{}, errs.New(errs.ErrorTypeValidation, 0,
			fmt.Sprintf("expected %s but got %s", want, kind.Extension))
	}

	minSize := d.config.MinImageSize
	if kind.Type == models.MediaTypeVideo {
		minSize = d.config.MinVideoSize
	}
	if size < minSize {
		return storage.Kind{}, errs.New(errs.ErrorTypeValidation, 0,
			fmt.Sprintf("downloaded %s is too small: %d bytes (minimum %d)", kind.Type, size, minSize))
	}
	return kind, nil
}
