package fetcher

import (
	"context"
	"errors"

	"catbot/pkg/config"
	errs "catbot/pkg/errors"
	"catbot/pkg/logger"
	"catbot/pkg/models"
)

// MediaLister lists an account's most recent media, newest first
type MediaLister interface {
	RecentMedia(ctx context.Context, account string, limit int) ([]models.Candidate, error)
}

// MediaDownloader turns a candidate into a local file
type MediaDownloader interface {
	Fetch(ctx context.Context, c models.Candidate) (models.MediaFile, error)
}

// SeenSet reports whether a media id was already posted
type SeenSet interface {
	Contains(mediaID string) bool
}

// Options selects which candidates qualify
type Options struct {
	Accounts      []string
	MinLikes      int
	Lookback      int
	IncludeImages bool
	IncludeVideos bool
}

// OptionsFromConfig reads the fetch options from the source config
func OptionsFromConfig(cfg config.SourceConfig) Options {
	return Options{
		Accounts:      cfg.Accounts,
		MinLikes:      cfg.MinLikes,
		Lookback:      cfg.Lookback,
		IncludeImages: cfg.IncludeImages,
		IncludeVideos: cfg.IncludeVideos,
	}
}

// Outcome is the result of one fetch. File is nil when nothing qualified.
type Outcome struct {
	File      *models.MediaFile
	Candidate models.Candidate
	Scanned   int
	Skipped   int
}

// Found reports whether a file was downloaded
func (o Outcome) Found() bool { return o.File != nil }

// Fetcher walks the source accounts in order and downloads the first
// unseen candidate above the like threshold.
type Fetcher struct {
	lister     MediaLister
	downloader MediaDownloader
	seen       SeenSet
	opts       Options
	logger     logger.Logger
}

// New creates a fetcher
func New(lister MediaLister, downloader MediaDownloader, seen SeenSet, opts Options, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		lister:     lister,
		downloader: downloader,
		seen:       seen,
		opts:       opts,
		logger:     log.WithField("component", "fetcher"),
	}
}

// Qualifies reports whether c passes the like threshold and type filter
func (f *Fetcher) Qualifies(c models.Candidate) bool {
	if c.LikeCount < f.opts.MinLikes {
		return false
	}
	switch c.Type {
	case models.MediaTypeVideo:
		return f.opts.IncludeVideos
	case models.MediaTypeImage:
		return f.opts.IncludeImages
	}
	return false
}

// FetchOne downloads the first qualifying media item not yet in the ledger.
// A failing account is logged and skipped. An error is returned only when
// every account failed, and it is retryable unless it is a configuration
// error. Finding nothing is a normal empty outcome.
func (f *Fetcher) FetchOne(ctx context.Context) (Outcome, error) {
	var (
		outcome Outcome
		lastErr error
		failed  int
	)

	if len(f.opts.Accounts) == 0 {
		return outcome, errs.New(errs.ErrorTypeConfig, 0, "no source accounts configured")
	}

	for _, account := range f.opts.Accounts {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		file, err := f.fromAccount(ctx, account, &outcome)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return outcome, err
			}
			failed++
			lastErr = err
			f.logger.WithError(err).WarnWithFields("source account failed, trying next", map[string]interface{}{
				"account": account,
			})
			continue
		}
		if file != nil {
			outcome.File = file
			return outcome, nil
		}
	}

	if failed == len(f.opts.Accounts) && lastErr != nil {
		return outcome, sourceFailure(lastErr)
	}

	f.logger.InfoWithFields("no qualifying media found", map[string]interface{}{
		"accounts": len(f.opts.Accounts),
		"scanned":  outcome.Scanned,
		"skipped":  outcome.Skipped,
	})
	return outcome, nil
}

// sourceFailure marks an all-accounts failure as retryable. A login wall
// or an expired CDN link on the source is not the publishing account's
// problem, so only configuration errors stay fatal.
func sourceFailure(err error) error {
	if errs.Is(err, errs.ErrorTypeConfig) {
		return err
	}
	return errs.Wrap(errs.ErrorTypeNetwork, err, "all source accounts failed")
}

// fromAccount returns the first file downloaded from account, nil if nothing
// qualified, or the last error if every qualifying download failed.
func (f *Fetcher) fromAccount(ctx context.Context, account string, outcome *Outcome) (*models.MediaFile, error) {
	candidates, err := f.lister.RecentMedia(ctx, account, f.opts.Lookback)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, c := range candidates {
		outcome.Scanned++
		if !f.Qualifies(c) {
			continue
		}
		if f.seen.Contains(c.MediaID) {
			outcome.Skipped++
			continue
		}

		file, err := f.downloader.Fetch(ctx, c)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
			f.logger.WithError(err).WarnWithFields("download failed, trying next candidate", map[string]interface{}{
				"account":  account,
				"media_id": c.MediaID,
			})
			continue
		}

		outcome.Candidate = c
		f.logger.InfoWithFields("selected media", map[string]interface{}{
			"account":    account,
			"media_id":   c.MediaID,
			"media_type": string(c.Type),
			"likes":      c.LikeCount,
			"comments":   c.CommentCount,
		})
		return &file, nil
	}
	return nil, lastErr
}
