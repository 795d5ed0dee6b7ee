// Package caption writes post captions.
//
// Captions come from a chat completion API reached through openai-go, which
// also serves Gemini's OpenAI-compatible endpoint. Every call is bounded by
// a timeout. When the API is not configured or a call fails, a template
// caption picked from the media id is returned instead, so callers always
// get something to post.
package caption
