package feeds

import (
	"context"
	"net/http"
	"strings"

	"github.com/Songmu/go-httpdate"
	"github.com/mmcdole/gofeed"

	"github.com/ItalyPaleAle/rss-notifier/models"
)

// Requests a RSS/Atom/JSON feed and parses it with gofeed
// We're using this rather than gofeed.ParseURL to have more control on the request
func (c *Client) requestRSSFeed(ctx context.Context, url string, opts FetchOptions) (*Document, error) {
	// Create the request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	key := models.FeedKey(url)
	cached, ok := c.validators.Get(key)
	if ok && !opts.IgnoreValidators {
		if !cached.LastModified.IsZero() {
			req.Header.Set("If-Modified-Since", cached.LastModified.UTC().Format(http.TimeFormat))
		}
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
	}

	// Send the request and read the data
	resp, err := c.httpClient(opts).Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	// Status code
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 304: not modified
		if resp.StatusCode == http.StatusNotModified {
			c.log.Debugf("Feed %s not modified", url)
			if cached.Doc == nil {
				return nil, ErrNotModified
			}
			doc := *cached.Doc
			doc.Cached = true
			return &doc, nil
		}
		return nil, &FetchError{
			URL: url,
			Err: gofeed.HTTPError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
			},
		}
	}

	// Parse the feed
	fp := gofeed.NewParser()
	posts, err := fp.Parse(resp.Body)
	if err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}

	// Keep the source's order: it's what the diff relies on
	doc := &Document{
		Title:   strings.TrimSpace(posts.Title),
		Entries: make([]models.Entry, 0, len(posts.Items)),
	}
	for _, el := range posts.Items {
		if el == nil {
			continue
		}
		doc.Entries = append(doc.Entries, entryFromItem(el))
	}

	c.log.Debugf("Found %d entries in feed %s", len(doc.Entries), url)

	// Remember the ETag and Last-Modified headers, only after the feed was parsed successfully
	v := validators{
		ETag: resp.Header.Get("ETag"),
	}
	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		d, err := httpdate.Str2Time(lastModified, nil)
		if err == nil && !d.IsZero() {
			v.LastModified = d
		}
	}
	if v.ETag != "" || !v.LastModified.IsZero() {
		// Entries are never modified after this, so the document can be shared
		cachedDoc := *doc
		v.Doc = &cachedDoc
		c.validators.Add(key, v)
	} else {
		c.validators.Remove(key)
	}

	return doc, nil
}

// Converts a gofeed item into an Entry
// The body is the summary or description; the full content is not used
func entryFromItem(el *gofeed.Item) models.Entry {
	e := models.Entry{
		ID:              strings.TrimSpace(el.GUID),
		Link:            strings.TrimSpace(el.Link),
		Title:           el.Title,
		Published:       el.Published,
		PublishedParsed: el.PublishedParsed,
		Content:         el.Description,
	}
	if e.Published == "" && el.Updated != "" {
		e.Published = el.Updated
		e.PublishedParsed = el.UpdatedParsed
	}
	if el.Image != nil && el.Image.URL != "" {
		e.Photo = el.Image.URL
	}
	return e
}
