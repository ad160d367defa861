package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry is a single post in a feed
// Entries are parsed fresh on every fetch and are never stored
type Entry struct {
	// Identifier provided by the feed (guid or atom id), may be empty
	ID string
	// Link to the post
	Link string
	// Title of the post
	Title string
	// Publish date as provided by the feed
	Published string
	// Parsed publish date, if the feed's value could be parsed
	PublishedParsed *time.Time
	// Summary or description
	Content string
	// Preview image, set only when metadata is requested
	Photo string
}

// FeedKey returns the stable fingerprint of a feed URL, used as lookup key
// The URL should already be normalized
func FeedKey(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:16])
}
