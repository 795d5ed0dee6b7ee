// Package retry runs an operation again after transient failures.
//
// Callers choose a backoff (exponential, linear or constant), a predicate
// deciding which errors are worth another attempt, and an attempt bound:
//
//	id, err := retry.DoWithResult(func() (string, error) {
//		return client.Publish(ctx, containerID)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.ExponentialBackoff{BaseDelay: 30 * time.Second, MaxDelay: 2 * time.Minute, Multiplier: 2},
//		RetryIf:     errors.IsRetryable,
//		Context:     ctx,
//	})
//
// When every attempt fails the returned *ExhaustedError wraps the last
// error, so errors.As still finds its type.
package retry
