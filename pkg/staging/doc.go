// Package staging exposes local media at a public URL by uploading it to an
// S3-compatible bucket such as Cloudflare R2. Objects get random nanoid keys
// and the content type sniffed from the file.
package staging
