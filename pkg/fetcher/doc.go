// Package fetcher picks the next media item to repost.
//
// Accounts are visited in configured order. For each one the last N media
// items are listed newest first, and the first one above the like threshold
// that is missing from the post ledger is downloaded. At most one file is
// produced per call.
package fetcher
