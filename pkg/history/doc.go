// Package history stores post and run records in SQLite (modernc.org/sqlite,
// no cgo). The dashboard reads it for recent activity and the runner uses it
// to enforce the daily post quota.
package history
