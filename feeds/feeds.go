package feeds

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ItalyPaleAle/rss-notifier/models"
	"github.com/ItalyPaleAle/rss-notifier/notify"
)

// Number of parallel requests to make by default
const DefaultParallelFetch = 4

// Store is the persistence layer for subscriptions and their watermarks
type Store interface {
	// ListFeeds returns the distinct URLs of all feeds with at least one subscriber
	ListFeeds(ctx context.Context) ([]string, error)
	// ListSubscribers returns all subscriptions to a feed
	ListSubscribers(ctx context.Context, feedURL string) ([]models.Subscription, error)
	// ListSubscriptions returns all subscriptions of a subscriber
	ListSubscriptions(ctx context.Context, subscriberID int64) ([]models.Subscription, error)
	// GetWatermark returns the watermark of a subscription, which is nil if the feed was never checked
	GetWatermark(ctx context.Context, subscriberID int64, feedURL string) (*string, error)
	// SetWatermark updates the watermark of a single subscription
	SetWatermark(ctx context.Context, subscriberID int64, feedURL string, value string) error
	// AddSubscription returns models.ErrAlreadySubscribed if the subscription exists
	AddSubscription(ctx context.Context, sub *models.Subscription) error
	// RemoveSubscription returns models.ErrSubscriptionNotFound if the subscription doesn't exist
	RemoveSubscription(ctx context.Context, subscriberID int64, feedURL string) error
}

// Fetcher retrieves and parses feeds
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (*Document, error)
}

// MetadataRequester adds metadata, such as a preview image, to an entry
type MetadataRequester interface {
	RequestMetadata(ctx context.Context, entry *models.Entry, opts FetchOptions)
}

// Dispatcher delivers notifications to a subscriber
type Dispatcher interface {
	Deliver(ctx context.Context, recipient int64, feedURL string, msg *notify.Message) error
}

// Options for New
type Options struct {
	// Number of feeds fetched in parallel during a pass
	ParallelFetch int
	// Timeout for fetching a single feed
	FetchTimeout time.Duration
	// Hosts whose TLS certificates are not verified
	InsecureTLSHosts []string
	// If set, new entries are enriched with metadata before being formatted
	Metadata MetadataRequester
}

// SubscribeResult is returned by AddSubscription
type SubscribeResult struct {
	Subscription *models.Subscription
	// Most recent entry in the feed, if any
	Latest *models.Entry
}

// Feeds is an object that manages subscriptions and runs the check passes
type Feeds struct {
	log           *logrus.Entry
	store         Store
	fetcher       Fetcher
	dispatcher    Dispatcher
	metadata      MetadataRequester
	running       chan struct{}
	queued        sync.WaitGroup
	parallel      int
	fetchTimeout  time.Duration
	insecureHosts map[string]bool
}

// New returns a new Feeds object
func New(store Store, fetcher Fetcher, dispatcher Dispatcher, opts Options) *Feeds {
	f := &Feeds{
		log:          logrus.WithField("component", "feeds"),
		store:        store,
		fetcher:      fetcher,
		dispatcher:   dispatcher,
		metadata:     opts.Metadata,
		parallel:     opts.ParallelFetch,
		fetchTimeout: opts.FetchTimeout,
		// Capacity of 1 means that there can only be one scheduled pass running
		running:       make(chan struct{}, 1),
		insecureHosts: make(map[string]bool, len(opts.InsecureTLSHosts)),
	}
	if f.parallel < 1 {
		f.parallel = DefaultParallelFetch
	}
	if f.fetchTimeout <= 0 {
		f.fetchTimeout = DefaultFetchTimeout
	}
	for _, h := range opts.InsecureTLSHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			f.insecureHosts[h] = true
		}
	}
	return f
}

// AddSubscription subscribes a chat to a feed
// The feed is fetched first to validate it: if that fails, nothing is stored
// The subscription starts with no watermark, so the first check doesn't send the backlog
func (f *Feeds) AddSubscription(ctx context.Context, feedURL string, chatID int64) (*SubscribeResult, error) {
	if chatID == 0 {
		return nil, errors.New("empty chat ID")
	}
	feedURL, err := NormalizeURL(feedURL)
	if err != nil {
		return nil, err
	}

	// Get the feed to both validate it and to get the latest entry
	f.log.Infof("Fetching feed %s", feedURL)
	opts := f.fetchOptions(feedURL)
	opts.IgnoreValidators = true
	doc, err := f.fetch(ctx, feedURL, opts)
	if err != nil {
		f.log.Warnf("Error while fetching the feed %s: %s", feedURL, err)
		return nil, err
	}

	sub := &models.Subscription{
		SubscriberID: chatID,
		FeedURL:      feedURL,
		FeedHash:     models.FeedKey(feedURL),
		FeedTitle:    doc.Title,
	}
	err = f.store.AddSubscription(ctx, sub)
	if err != nil {
		if !errors.Is(err, models.ErrAlreadySubscribed) {
			f.log.Errorf("Error adding subscription to feed %s for chat %d: %s", feedURL, chatID, err)
		}
		return nil, err
	}

	f.log.Infof("Added feed %s to chat %d", feedURL, chatID)

	res := &SubscribeResult{
		Subscription: sub,
	}
	if len(doc.Entries) > 0 {
		latest := doc.Entries[0]
		res.Latest = &latest
	}
	return res, nil
}

// RemoveSubscription removes a subscription to a feed
// Returns models.ErrSubscriptionNotFound if the chat isn't subscribed
func (f *Feeds) RemoveSubscription(ctx context.Context, chatID int64, feedURL string) error {
	feedURL, err := NormalizeURL(feedURL)
	if err != nil {
		return err
	}

	err = f.store.RemoveSubscription(ctx, chatID, feedURL)
	if err != nil {
		if !errors.Is(err, models.ErrSubscriptionNotFound) {
			f.log.Errorf("Error removing subscription to feed %s for chat %d: %s", feedURL, chatID, err)
		}
		return err
	}

	f.log.Infof("Removed feed %s from chat %d", feedURL, chatID)
	return nil
}

// ListSubscriptions lists all subscriptions for a chat
func (f *Feeds) ListSubscriptions(ctx context.Context, chatID int64) ([]models.Subscription, error) {
	return f.store.ListSubscriptions(ctx, chatID)
}

// Fetches a feed, with the fetch timeout applied
func (f *Feeds) fetch(ctx context.Context, feedURL string, opts FetchOptions) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()
	return f.fetcher.Fetch(ctx, feedURL, opts)
}

// Returns the options for fetching a feed
func (f *Feeds) fetchOptions(feedURL string) FetchOptions {
	opts := FetchOptions{}
	if len(f.insecureHosts) == 0 {
		return opts
	}
	u, err := url.Parse(feedURL)
	if err == nil && f.insecureHosts[strings.ToLower(u.Hostname())] {
		opts.SkipTLSVerify = true
	}
	return opts
}
