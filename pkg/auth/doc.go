// Package auth stores the publishing account's access token, and optionally
// a browser session for reading source accounts, outside the config file.
// The system keychain is tried first, then an encrypted file under the
// user's config directory. Environment variables are read last.
package auth
