package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ItalyPaleAle/rss-notifier/models"
)

// Items are intentionally not sorted by date: the source's order must be kept
const testRSSFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
  <channel>
    <title>Test RSS Feed</title>
    <link>https://example.com</link>
    <item>
      <title>Post Three</title>
      <link>https://example.com/post-3</link>
      <guid>guid-3</guid>
      <description>&lt;p&gt;Third post&lt;/p&gt;</description>
      <pubDate>Wed, 03 Jan 2024 12:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Post One</title>
      <link>https://example.com/post-1</link>
      <content:encoded><![CDATA[<p>Only content</p>]]></content:encoded>
      <pubDate>Mon, 01 Jan 2024 12:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Post Two</title>
      <link>https://example.com/post-2</link>
      <guid>guid-2</guid>
      <pubDate>not a date</pubDate>
    </item>
  </channel>
</rss>`

const testAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Test Atom Feed</title>
  <link href="https://example.com" rel="alternate"/>
  <entry>
    <title>Atom Post Two</title>
    <id>atom-id-2</id>
    <link href="https://example.com/atom-2" rel="alternate"/>
    <content>Second Atom post content body</content>
    <updated>2024-01-02T12:00:00Z</updated>
  </entry>
  <entry>
    <title>Atom Post One</title>
    <id>atom-id-1</id>
    <link href="https://example.com/atom-1" rel="alternate"/>
    <summary>First Atom post summary</summary>
    <updated>2024-01-01T12:00:00Z</updated>
  </entry>
</feed>`

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(5*time.Second, 16)
	require.NoError(t, err)
	return c
}

func serveString(content string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(content))
	})
}

func TestFetchRSS(t *testing.T) {
	srv := httptest.NewServer(serveString(testRSSFeed))
	defer srv.Close()

	doc, err := newTestClient(t).Fetch(context.Background(), srv.URL, FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Test RSS Feed", doc.Title)
	assert.False(t, doc.Cached)
	require.Len(t, doc.Entries, 3)

	assert.Equal(t, "guid-3", doc.Entries[0].ID)
	assert.Equal(t, "Post Three", doc.Entries[0].Title)
	assert.Equal(t, "<p>Third post</p>", doc.Entries[0].Content)
	require.NotNil(t, doc.Entries[0].PublishedParsed)
	assert.Equal(t, 2024, doc.Entries[0].PublishedParsed.Year())

	// No GUID: the link is the identity
	assert.Equal(t, "", doc.Entries[1].ID)
	assert.Equal(t, "https://example.com/post-1", EntryID(&doc.Entries[1]))
	// The full content isn't used as body
	assert.Equal(t, "", doc.Entries[1].Content)

	// Unparseable dates are kept as text
	assert.Equal(t, "not a date", doc.Entries[2].Published)
	assert.Nil(t, doc.Entries[2].PublishedParsed)
}

func TestFetchAtom(t *testing.T) {
	srv := httptest.NewServer(serveString(testAtomFeed))
	defer srv.Close()

	doc, err := newTestClient(t).Fetch(context.Background(), srv.URL, FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Test Atom Feed", doc.Title)
	require.Len(t, doc.Entries, 2)
	assert.Equal(t, "atom-id-2", doc.Entries[0].ID)
	assert.Equal(t, "https://example.com/atom-2", doc.Entries[0].Link)
	// Only the summary is used as body
	assert.Equal(t, "", doc.Entries[0].Content)
	assert.Equal(t, "First Atom post summary", doc.Entries[1].Content)
	// Atom entries only have the updated date
	require.NotNil(t, doc.Entries[1].PublishedParsed)
	assert.Equal(t, 1, doc.Entries[1].PublishedParsed.Day())
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t).Fetch(context.Background(), srv.URL, FetchOptions{})
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, srv.URL, fe.URL)
	assert.True(t, IsFetchFailure(err))

	var he gofeed.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusInternalServerError, he.StatusCode)
}

func TestFetchParseError(t *testing.T) {
	srv := httptest.NewServer(serveString("<html><body>This is not a feed</body></html>"))
	defer srv.Close()

	_, err := newTestClient(t).Fetch(context.Background(), srv.URL, FetchOptions{})
	require.Error(t, err)

	var pe *ParseError
	assert.True(t, errors.As(err, &pe))
	assert.True(t, IsFetchFailure(err))
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(serveString(testRSSFeed))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t).Fetch(context.Background(), url, FetchOptions{})
	var fe *FetchError
	assert.True(t, errors.As(err, &fe))
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := newTestClient(t).Fetch(ctx, srv.URL, FetchOptions{})
	assert.True(t, IsFetchFailure(err))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestFetchConditional(t *testing.T) {
	var requests, conditional int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			atomic.AddInt32(&conditional, 1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 01 Jan 2024 12:00:00 GMT")
		w.Write([]byte(testRSSFeed))
	}))
	defer srv.Close()

	c := newTestClient(t)
	doc, err := c.Fetch(context.Background(), srv.URL, FetchOptions{})
	require.NoError(t, err)
	assert.False(t, doc.Cached)

	// Second request is conditional, and the previous document is returned
	cached, err := c.Fetch(context.Background(), srv.URL, FetchOptions{})
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, doc.Title, cached.Title)
	assert.Equal(t, ids(doc.Entries), ids(cached.Entries))
	assert.Equal(t, int32(1), atomic.LoadInt32(&conditional))

	// Validators can be ignored
	full, err := c.Fetch(context.Background(), srv.URL, FetchOptions{IgnoreValidators: true})
	require.NoError(t, err)
	assert.False(t, full.Cached)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
	assert.Equal(t, int32(1), atomic.LoadInt32(&conditional))
}

func TestFetchNotModifiedWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	_, err := newTestClient(t).Fetch(context.Background(), srv.URL, FetchOptions{})
	assert.ErrorIs(t, err, ErrNotModified)
	assert.False(t, IsFetchFailure(err))
}

func TestFetchSkipTLSVerify(t *testing.T) {
	srv := httptest.NewTLSServer(serveString(testRSSFeed))
	defer srv.Close()

	c := newTestClient(t)

	// Self-signed certificate is rejected by default
	_, err := c.Fetch(context.Background(), srv.URL, FetchOptions{})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))

	// Accepted for this request only
	doc, err := c.Fetch(context.Background(), srv.URL, FetchOptions{SkipTLSVerify: true})
	require.NoError(t, err)
	assert.Len(t, doc.Entries, 3)

	// And rejected again afterwards
	_, err = c.Fetch(context.Background(), srv.URL, FetchOptions{})
	assert.True(t, errors.As(err, &fe))
}

func TestFetchDockerHub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/repositories/library/nginx/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"results":[
			{"id":1,"name":"1.24","last_updated":"2024-01-01T10:00:00Z","last_updater_username":"doi"},
			{"id":2,"name":"latest","last_updated":"2024-01-03T10:00:00Z","last_updater_username":"doi"},
			{"id":3,"name":"1.25","last_updated":"2024-01-02T10:00:00Z","last_updater_username":"doi"}
		]}`)
	}))
	defer srv.Close()

	prev := dockerHubAPI
	dockerHubAPI = srv.URL
	defer func() {
		dockerHubAPI = prev
	}()

	doc, err := newTestClient(t).Fetch(context.Background(), "https://hub.docker.com/_/nginx", FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Docker Hub: library/nginx", doc.Title)
	require.Len(t, doc.Entries, 3)

	// Newest first
	assert.Equal(t, "nginx:latest", doc.Entries[0].Title)
	assert.Equal(t, "nginx:1.25", doc.Entries[1].Title)
	assert.Equal(t, "nginx:1.24", doc.Entries[2].Title)
	assert.Equal(t, "nginx:latest@2024-01-03T10:00:00Z", doc.Entries[0].ID)
	assert.Equal(t, "https://hub.docker.com/_/nginx", doc.Entries[0].Link)

	_, err = newTestClient(t).Fetch(context.Background(), "https://hub.docker.com/r/someone/missing", FetchOptions{})
	assert.True(t, IsFetchFailure(err))
}

func TestRequestMetadata(t *testing.T) {
	srv := httptest.NewServer(serveString(`<html><head>
<meta property="og:title" content="Page title">
<meta property="og:image" content="https://cdn.example.com/img.png">
</head><body></body></html>`))
	defer srv.Close()

	c := newTestClient(t)

	e := &models.Entry{Link: srv.URL + "/post"}
	c.RequestMetadata(context.Background(), e, FetchOptions{})
	assert.Equal(t, "https://cdn.example.com/img.png", e.Photo)

	// Existing photos are kept
	e = &models.Entry{Link: srv.URL + "/post", Photo: "https://example.com/mine.png"}
	c.RequestMetadata(context.Background(), e, FetchOptions{})
	assert.Equal(t, "https://example.com/mine.png", e.Photo)

	// Errors are ignored
	e = &models.Entry{Link: "http://127.0.0.1:1/unreachable"}
	c.RequestMetadata(context.Background(), e, FetchOptions{})
	assert.Equal(t, "", e.Photo)
}
