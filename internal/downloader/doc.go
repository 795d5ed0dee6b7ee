// Package downloader turns a source candidate into a validated file in the
// downloads directory. Each attempt writes to a .part file that is only
// renamed into place once its size and sniffed type check out.
package downloader
