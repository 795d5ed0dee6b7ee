// Package metadata reads and writes the JSON sidecar stored next to each
// downloaded file. The sidecar carries the source caption and hashtags the
// caption generator uses as context.
package metadata
