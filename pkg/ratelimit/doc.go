// Package ratelimit paces requests to the content source so profile reads
// and media downloads stay below the rate that gets a session throttled.
package ratelimit
