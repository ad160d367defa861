package feeds

import (
	"context"
	"net/http"

	"github.com/mmcdole/gofeed"
	opengraph "github.com/otiai10/opengraph/v2"

	"github.com/ItalyPaleAle/rss-notifier/models"
)

// RequestMetadata requests the web page linked by the entry to get a preview image from the page's metadata
// This method updates the value of the entry argument as a side effect
// Errors are logged only and then ignored
func (c *Client) RequestMetadata(ctx context.Context, entry *models.Entry, opts FetchOptions) {
	if entry.Link == "" || entry.Photo != "" {
		return
	}

	// Wrapping this in a method that returns an error
	err := c.doRequestMetadata(ctx, entry, opts)
	if err != nil {
		c.log.Warnf("Error while requesting the page %s: %s", entry.Link, err)
		return
	}
}

func (c *Client) doRequestMetadata(ctx context.Context, entry *models.Entry, opts FetchOptions) error {
	// Request the web page
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.Link, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient(opts).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Status code
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gofeed.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	// Read the response and extract the OpenGraph tags
	ogp := &opengraph.OpenGraph{
		Intent: opengraph.Intent{
			URL: entry.Link,
		},
	}
	err = ogp.Parse(resp.Body)
	if err != nil {
		return err
	}
	err = ogp.ToAbs()
	if err != nil {
		return err
	}

	if len(ogp.Image) > 0 {
		entry.Photo = ogp.Image[0].URL
	}

	return nil
}
