// Package server exposes the bot over HTTP with fiber: a health index,
// a synchronous /run-task trigger, /status and /logs.
//
// Example:
//
//	srv := server.New(runner, server.Options{LogFile: cfg.Logging.File}, log)
//	go srv.Listen(":5000")
//	defer srv.Shutdown(ctx)
package server
