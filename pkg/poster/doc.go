// Package poster publishes a downloaded file to the bot's Instagram account.
//
// The file is staged to object storage, a media container is created from
// the staged URL and published, then the staged object is removed. In
// testing mode nothing leaves the machine: the post is logged and recorded
// as simulated.
package poster
