package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ItalyPaleAle/rss-notifier/models"
)

var dockerHubMatch = regexp.MustCompile("^https:\\/\\/hub\\.docker\\.com\\/((r|repository\\/docker)\\/([a-z0-9]+)|_)\\/(.*?)$")

// Base URL for the Docker Hub API; a variable so tests can point it elsewhere
var dockerHubAPI = "https://hub.docker.com"

type dockerHubTagList struct {
	Results []struct {
		ID                  int        `json:"id"`
		Tag                 string     `json:"name"`
		LastUpdated         *time.Time `json:"last_updated"`
		LastUpdaterUsername string     `json:"last_updater_username"`
	} `json:"results"`
}

// Requests a "feed" containing the latest tags for an image on Docker Hub
// Tags are returned newest-first, and each tag update is a distinct entry
func (c *Client) requestDockerFeed(ctx context.Context, url string, opts FetchOptions) (*Document, error) {
	// Get the username and repository name
	match := dockerHubMatch.FindStringSubmatch(url)
	if len(match) < 5 || match[4] == "" {
		return nil, ErrInvalidURL
	}
	var username, repository, fullName, link string

	if match[1] == "_" {
		// From the official library
		username = "library"
	} else {
		username = match[3]
	}
	repository = match[4]

	// Create the request
	reqUrl := fmt.Sprintf("%s/v2/repositories/%s/%s/tags", dockerHubAPI, username, repository)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqUrl, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	// Send the request and read the data
	resp, err := c.httpClient(opts).Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	// Status code
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			URL: url,
			Err: gofeed.HTTPError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
			},
		}
	}

	// Parse the response as JSON
	body := dockerHubTagList{}
	err = json.NewDecoder(resp.Body).Decode(&body)
	if err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}

	// Link and full name
	if username == "library" {
		link = fmt.Sprintf("https://hub.docker.com/_/%s", repository)
		fullName = repository
	} else {
		link = fmt.Sprintf("https://hub.docker.com/r/%s/%s", username, repository)
		fullName = username + "/" + repository
	}

	doc := &Document{
		Title:   fmt.Sprintf("Docker Hub: %s/%s", username, repository),
		Entries: make([]models.Entry, 0, len(body.Results)),
	}
	for _, el := range body.Results {
		e := models.Entry{
			Title:   fmt.Sprintf("%s:%s", fullName, el.Tag),
			Link:    link,
			Content: fmt.Sprintf("Docker tag %s:%s updated by %s", fullName, el.Tag, el.LastUpdaterUsername),
		}
		// The same tag can be pushed again, so the update time is part of the identity
		updated := ""
		if el.LastUpdated != nil && !el.LastUpdated.IsZero() {
			t := el.LastUpdated.UTC()
			e.PublishedParsed = &t
			e.Published = t.Format(time.RFC1123)
			updated = t.Format(time.RFC3339)
		}
		e.ID = fmt.Sprintf("%s:%s@%s", fullName, el.Tag, updated)
		doc.Entries = append(doc.Entries, e)
	}

	// Newest first, like a feed
	sort.SliceStable(doc.Entries, func(i, j int) bool {
		a, b := doc.Entries[i].PublishedParsed, doc.Entries[j].PublishedParsed
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})

	c.log.Debugf("Found %d tags for image %s", len(doc.Entries), fullName)

	return doc, nil
}
