// Package instagram reads public profiles from Instagram's web API.
//
// Only the profile endpoint is used: it returns a profile together with its
// twelve most recent media items, which is all the fetcher looks at. Media
// is streamed from the CDN URLs found there.
//
// Errors are *errors.Error values so callers can tell rate limits and
// network trouble apart from missing or private profiles.
package instagram
