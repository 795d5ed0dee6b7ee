// Package logger provides the structured logging interface used across catbot.
//
// It wraps zerolog. Console output is colored; when a log file is configured
// events are also appended to it as JSON lines so the dashboard can serve
// the tail of the file.
//
//	err := logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("component", "poster")
//	log.WithError(err).Warn("publish failed")
//
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
