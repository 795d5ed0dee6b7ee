package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "catbot/pkg/errors"
	"catbot/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func() error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func() (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts including the first (0 means unlimited)
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Context for cancellation
	Context context.Context
	// Logger for retry attempts
	Logger logger.Logger
	// Operation names the retried call in log output
	Operation string
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf retries typed errors marked retryable and any untyped error
// except context cancellation.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return errs.IsRetryableType(apiErr.Type)
	}
	return true
}

// ExhaustedError is returned once every attempt has failed
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retry attempts (%d) exceeded: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do executes an operation with retry logic
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultExponentialBackoff()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	if cfg.Operation != "" {
		log = log.WithField("operation", cfg.Operation)
	}

	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		if !retryIf(err) {
			log.DebugWithFields("error is not retryable", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			return err
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			log.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return &ExhaustedError{Attempts: attempt, Err: err}
		}

		delay := backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": cfg.MaxAttempts,
		})

		if werr := Wait(ctx, delay); werr != nil {
			log.WarnWithFields("retry cancelled", map[string]interface{}{
				"attempt": attempt,
				"reason":  werr.Error(),
			})
			return fmt.Errorf("retry cancelled: %w", errors.Join(werr, err))
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, cfg)

	return result, err
}
