package feeds

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ItalyPaleAle/rss-notifier/metrics"
	"github.com/ItalyPaleAle/rss-notifier/models"
	"github.com/ItalyPaleAle/rss-notifier/notify"
)

// Triggers for passes, used in logs and metrics
const (
	triggerScheduled = "scheduled"
	triggerManual    = "manual"
)

// PassReport summarizes the outcome of a pass
type PassReport struct {
	// Number of feeds in the pass
	Feeds int
	// Feeds the server reported as not modified since the previous fetch
	NotModified int
	// Feeds that could not be fetched or parsed
	Failed []FeedFailure
	// Number of new entries found, across all subscribers
	NewEntries int
	// Deliveries that succeeded and that failed
	Delivered        int
	FailedDeliveries int
}

// FeedFailure is a feed that was skipped in a pass
type FeedFailure struct {
	URL string
	Err error
}

// A feed to update in a pass
type feedJob struct {
	URL string
	// If true, only the subscription of Subscriber is updated
	Scoped     bool
	Subscriber int64
	Title      string
}

type workerResult struct {
	Job feedJob
	Doc *Document
	Err error
}

// QueueUpdate starts a pass over all feeds in background
// If a pass is already running, this one is dropped
func (f *Feeds) QueueUpdate(ctx context.Context) {
	f.queued.Add(1)
	go func() {
		defer f.queued.Done()
		// Errors are already logged
		_, _, _ = f.TryUpdate(ctx)
	}()
}

// Wait blocks until all passes started by QueueUpdate have returned
// Call it before closing the store
func (f *Feeds) Wait() {
	f.queued.Wait()
}

// TryUpdate runs a pass over all feeds, unless one is already running
// Returns false if the pass was skipped
// An error is returned only if the pass was aborted because of the store
func (f *Feeds) TryUpdate(ctx context.Context) (*PassReport, bool, error) {
	// Don't queue: with slow feeds, passes could pile up faster than they complete
	select {
	case f.running <- struct{}{}:
	default:
		f.log.Info("A pass is already running, skipping this one")
		metrics.PassesSkipped.Inc()
		return nil, false, nil
	}
	defer func() {
		<-f.running
	}()

	report, err := f.runPass(ctx, triggerScheduled, func(ctx context.Context) ([]feedJob, error) {
		urls, err := f.store.ListFeeds(ctx)
		if err != nil {
			return nil, err
		}
		jobs := make([]feedJob, len(urls))
		for i, u := range urls {
			jobs[i] = feedJob{URL: u}
		}
		return jobs, nil
	})
	return report, true, err
}

// CheckSubscriber runs a pass over the feeds of a single subscriber
// This is independent from the scheduled passes and can run at the same time
func (f *Feeds) CheckSubscriber(ctx context.Context, subscriberID int64) (*PassReport, error) {
	return f.runPass(ctx, triggerManual, func(ctx context.Context) ([]feedJob, error) {
		subs, err := f.store.ListSubscriptions(ctx, subscriberID)
		if err != nil {
			return nil, err
		}
		jobs := make([]feedJob, len(subs))
		for i, s := range subs {
			jobs[i] = feedJob{
				URL:        s.FeedURL,
				Scoped:     true,
				Subscriber: subscriberID,
				Title:      s.FeedTitle,
			}
		}
		return jobs, nil
	})
}

// Runs a pass, logging its outcome
func (f *Feeds) runPass(ctx context.Context, trigger string, load func(ctx context.Context) ([]feedJob, error)) (*PassReport, error) {
	log := f.log.WithFields(logrus.Fields{
		"pass":    uuid.NewString(),
		"trigger": trigger,
	})
	start := time.Now()
	log.Info("Started updating feeds")

	report, err := f.updateFeeds(ctx, log, load)
	metrics.PassDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Passes.WithLabelValues(trigger, "error").Inc()
		log.Errorf("Pass aborted: %s", err)
		return report, err
	}
	metrics.Passes.WithLabelValues(trigger, "ok").Inc()

	log.WithFields(logrus.Fields{
		"feeds":      report.Feeds,
		"failed":     len(report.Failed),
		"newEntries": report.NewEntries,
		"delivered":  report.Delivered,
	}).Infof("Done updating feeds in %s", time.Since(start).Round(time.Millisecond))
	return report, nil
}

// Internal worker that fetches feeds, in parallel
func (f *Feeds) updateWorker(ctx context.Context, log *logrus.Entry, id int, jobs <-chan feedJob, results chan<- workerResult) {
	for j := range jobs {
		log.Debugf("Worker %d started fetching feed %s", id, j.URL)
		res := workerResult{
			Job: j,
		}
		res.Doc, res.Err = f.fetch(ctx, j.URL, f.fetchOptions(j.URL))
		select {
		case results <- res:
		case <-ctx.Done():
			return
		}
	}
}

// Fetches every feed once, then diffs and notifies each subscriber
// Fetches run in parallel; everything else happens sequentially as results come in
func (f *Feeds) updateFeeds(parentCtx context.Context, log *logrus.Entry, load func(ctx context.Context) ([]feedJob, error)) (*PassReport, error) {
	report := &PassReport{}

	list, err := load(parentCtx)
	if err != nil {
		return report, err
	}
	report.Feeds = len(list)
	if len(list) == 0 {
		return report, nil
	}

	// Canceling this context stops the workers if the pass is aborted
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	workers := f.parallel
	if workers > len(list) {
		workers = len(list)
	}
	jobs := make(chan feedJob)
	results := make(chan workerResult, workers)
	wg := sync.WaitGroup{}
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			f.updateWorker(ctx, log, id, jobs, results)
		}(i)
	}

	// Enqueue the jobs in background so results are consumed while fetches are running
	go func() {
		defer close(jobs)
		for _, j := range list {
			select {
			case jobs <- j:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		err = f.processResult(ctx, log, res, report)
		if err != nil {
			return report, err
		}
	}

	return report, parentCtx.Err()
}

// Processes a fetched feed for all its subscribers in the pass
// Returns an error only if the store failed
func (f *Feeds) processResult(ctx context.Context, log *logrus.Entry, res workerResult, report *PassReport) error {
	log = log.WithField("feed", res.Job.URL)

	if res.Err != nil {
		if errors.Is(res.Err, ErrNotModified) {
			report.NotModified++
			return nil
		}

		kind := "fetch"
		var pe *ParseError
		if errors.As(res.Err, &pe) {
			kind = "parse"
		}
		metrics.FetchErrors.WithLabelValues(kind).Inc()
		log.Warnf("Skipping feed for this pass: %s", res.Err)
		report.Failed = append(report.Failed, FeedFailure{
			URL: res.Job.URL,
			Err: res.Err,
		})
		return nil
	}

	if res.Doc.Cached {
		// Subscribers that haven't seen the previous document yet still need the diff
		report.NotModified++
	}

	subs, err := f.subscribers(ctx, res.Job)
	if err != nil {
		return err
	}

	// Metadata is requested at most once per entry, even with many subscribers
	enriched := map[string]models.Entry{}
	for i := range subs {
		err = f.notifySubscriber(ctx, log, res.Doc, &subs[i], enriched, report)
		if err != nil {
			return err
		}
	}
	return nil
}

// Returns the subscriptions to update for a feed, with their current watermark
func (f *Feeds) subscribers(ctx context.Context, job feedJob) ([]models.Subscription, error) {
	if !job.Scoped {
		return f.store.ListSubscribers(ctx, job.URL)
	}

	watermark, err := f.store.GetWatermark(ctx, job.Subscriber, job.URL)
	if errors.Is(err, models.ErrSubscriptionNotFound) {
		// Unsubscribed in the meanwhile
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return []models.Subscription{{
		SubscriberID: job.Subscriber,
		FeedURL:      job.URL,
		FeedTitle:    job.Title,
		Watermark:    watermark,
	}}, nil
}

// Diffs a feed against a subscriber's watermark, sends the new entries, and then advances the watermark
func (f *Feeds) notifySubscriber(ctx context.Context, log *logrus.Entry, doc *Document, sub *models.Subscription, enriched map[string]models.Entry, report *PassReport) error {
	log = log.WithField("subscriber", sub.SubscriberID)

	newEntries, watermark := Diff(doc.Entries, sub.Watermark)
	if watermark == nil || (sub.Watermark != nil && *sub.Watermark == *watermark) {
		// Nothing changed
		return nil
	}

	title := doc.Title
	if title == "" {
		title = sub.FeedTitle
	}
	if title == "" {
		title = sub.FeedURL
	}

	msgs := make([]*notify.Message, len(newEntries))
	for i := range newEntries {
		e := f.enrich(ctx, sub.FeedURL, &newEntries[i], enriched)
		msgs[i] = notify.FormatUpdate(title, e)
	}

	report.NewEntries += len(msgs)
	delivered := 0
	for _, m := range msgs {
		// Errors are logged by the dispatcher and don't stop the other deliveries
		err := f.dispatcher.Deliver(ctx, sub.SubscriberID, sub.FeedURL, m)
		if err != nil {
			report.FailedDeliveries++
			continue
		}
		delivered++
	}
	report.Delivered += delivered

	// The watermark advances once the entries were handed off, whatever the outcome of the deliveries
	// If the process stops before this, the same entries are found again in the next pass
	err := f.store.SetWatermark(ctx, sub.SubscriberID, sub.FeedURL, *watermark)
	if errors.Is(err, models.ErrSubscriptionNotFound) {
		log.Info("Subscription was removed during the pass")
		return nil
	} else if err != nil {
		return err
	}

	if len(msgs) == 0 {
		log.Debugf("First check, watermark set to %q", *watermark)
		return nil
	}
	log.Infof("Found %d new entries, delivered %d", len(msgs), delivered)
	return nil
}

// Returns the entry with its metadata, requesting it if needed
func (f *Feeds) enrich(ctx context.Context, feedURL string, e *models.Entry, enriched map[string]models.Entry) *models.Entry {
	if f.metadata == nil {
		return e
	}
	id := EntryID(e)
	if cached, ok := enriched[id]; ok {
		return &cached
	}
	f.metadata.RequestMetadata(ctx, e, f.fetchOptions(feedURL))
	enriched[id] = *e
	return e
}
