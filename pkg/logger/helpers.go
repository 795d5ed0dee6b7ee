package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs a served HTTP request at a level matching its status
func LogRequest(l Logger, method, path string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": float64(duration.Microseconds()) / 1000,
	}

	switch {
	case statusCode >= 500:
		l.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.InfoWithFields("HTTP request completed", fields)
	}
}

// LogDownload logs the outcome of one media download
func LogDownload(l Logger, account, mediaID, mediaType string, size int64, err error) {
	entry := l.WithFields(map[string]interface{}{
		"account":    account,
		"media_id":   mediaID,
		"media_type": mediaType,
	})

	if err != nil {
		entry.WithError(err).Error("Download failed")
		return
	}
	entry.WithField("bytes", size).Info("Download completed")
}

// LogRateLimit logs a rate limiting event and the delay before the next try
func LogRateLimit(l Logger, operation string, attempt int, wait time.Duration) {
	l.WithFields(map[string]interface{}{
		"operation": operation,
		"attempt":   attempt,
		"wait":      wait,
		"action":    "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, settings map[string]interface{}) {
	entry := l.WithField("component", component)
	if len(settings) > 0 {
		entry = entry.WithFields(settings)
	}
	entry.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
