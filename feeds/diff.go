package feeds

import (
	"github.com/ItalyPaleAle/rss-notifier/models"
)

// EntryID returns the identity of an entry, used for watermarks
// This is the feed-provided identifier, falling back to the link if there's none
// Entries with neither have an empty identity and can't be told apart
func EntryID(e *models.Entry) string {
	if e.ID != "" {
		return e.ID
	}
	return e.Link
}

// Diff returns the entries that are new compared to the watermark, and the watermark to store next
// Entries must be in the order the source provides them, which is newest-first
// The result is in chronological order (oldest-first)
//
// - With no watermark (first check), nothing is new: a new subscriber doesn't get the backlog
// - If the watermark isn't in the list anymore, only the newest entry is returned
// - The new watermark is the identity of the first entry; with no entries it is unchanged
func Diff(entries []models.Entry, watermark *string) (newEntries []models.Entry, newWatermark *string) {
	if len(entries) == 0 {
		return nil, watermark
	}

	latest := EntryID(&entries[0])
	newWatermark = &latest

	// First check for this subscriber
	if watermark == nil {
		return nil, newWatermark
	}

	found := -1
	for i := range entries {
		if EntryID(&entries[i]) == *watermark {
			found = i
			break
		}
	}

	// Watermark is gone (feed rewound or truncated): deliver the newest entry only
	if found < 0 {
		return []models.Entry{entries[0]}, newWatermark
	}

	newEntries = make([]models.Entry, found)
	for i := 0; i < found; i++ {
		newEntries[i] = entries[found-1-i]
	}
	return newEntries, newWatermark
}
