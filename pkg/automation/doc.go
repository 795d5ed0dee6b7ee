// Package automation runs one bot cycle: check the daily quota, sweep stale
// downloads, post waiting user content or fetch a new candidate, caption
// and publish it, then clean up. A Runner allows one cycle at a time.
package automation
