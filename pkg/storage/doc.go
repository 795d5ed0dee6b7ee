// Package storage manages the bot's working directories.
//
// Downloads are written through a temporary file and renamed into place.
// Files are sniffed with h2non/filetype so only JPEG, PNG, MP4 and MOV
// content is ever handed to the poster.
package storage
