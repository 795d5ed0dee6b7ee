// Package graph talks to the Instagram Graph API for the publishing account.
//
// Publishing is two steps: create a media container from a public URL, then
// publish it. Video containers are processed asynchronously and must be
// polled until they report FINISHED.
//
// Errors carry the bot's error types: Graph codes 4, 17, 32 and 613 and HTTP
// 429 are rate limits, code 190 and HTTP 401/403 are authentication failures.
package graph
