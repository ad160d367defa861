package feeds

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/ItalyPaleAle/rss-notifier/models"
)

// Default timeout for HTTP requests
const DefaultFetchTimeout = 20 * time.Second

// User agent for all requests
const userAgent = "RSSNotifier/1.0"

// FetchOptions contains options for a single fetch
type FetchOptions struct {
	// If true, the server's TLS certificate is not verified for this request only
	// This is meant for sources with self-signed or misconfigured certificates
	SkipTLSVerify bool
	// If true, the request isn't conditional, so the full document is always returned
	IgnoreValidators bool
}

// Document is a feed that was fetched and parsed
type Document struct {
	Title string
	// Entries in the order the source returned them (newest-first)
	Entries []models.Entry
	// True if the server reported that the feed hasn't changed, and this is the document from the previous fetch
	Cached bool
}

// Validators returned by the server, used for conditional requests, and the document they refer to
type validators struct {
	ETag         string
	LastModified time.Time
	Doc          *Document
}

// Client fetches feeds and parses them into entries
type Client struct {
	log        *logrus.Entry
	client     *http.Client
	insecure   *http.Client
	validators *lru.Cache[string, validators]
}

// NewClient returns a new Client
// The timeout applies to each request; cacheSize is the number of feeds for which ETag/Last-Modified values are remembered
func NewClient(timeout time.Duration, cacheSize int) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if cacheSize < 1 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, validators](cacheSize)
	if err != nil {
		return nil, err
	}

	// The insecure client has its own transport so the default one is never modified
	insecureTransport := http.DefaultTransport.(*http.Transport).Clone()
	insecureTransport.TLSClientConfig = &tls.Config{
		//nolint:gosec
		InsecureSkipVerify: true,
	}

	return &Client{
		log: logrus.WithField("component", "feeds-client"),
		client: &http.Client{
			Timeout: timeout,
		},
		insecure: &http.Client{
			Timeout:   timeout,
			Transport: insecureTransport,
		},
		validators: cache,
	}, nil
}

// Fetch requests a feed of any kind and returns its entries
// If the server reports the feed hasn't changed since the last fetch, the previous document is returned with Cached set
func (c *Client) Fetch(ctx context.Context, url string, opts FetchOptions) (*Document, error) {
	if url == "" {
		return nil, ErrInvalidURL
	}

	// Check the type of feed
	switch {
	// Docker Hub
	case strings.HasPrefix(url, "https://hub.docker.com/"):
		return c.requestDockerFeed(ctx, url, opts)
	// Default: RSS/Atom/JSON feed
	default:
		return c.requestRSSFeed(ctx, url, opts)
	}
}

// Returns the HTTP client to use for the request
func (c *Client) httpClient(opts FetchOptions) *http.Client {
	if opts.SkipTLSVerify {
		return c.insecure
	}
	return c.client
}
