package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ItalyPaleAle/rss-notifier/metrics"
)

// Default timeout for a single delivery
const DefaultDeliveryTimeout = 10 * time.Second

// Sender sends a message to a recipient over the notification channel
type Sender interface {
	Send(ctx context.Context, recipient int64, msg *Message) error
}

// Dispatcher delivers notifications to subscribers
// Every delivery is independent: a failure is logged and returned, and never retried
type Dispatcher struct {
	log     *logrus.Entry
	sender  Sender
	timeout time.Duration
	limiter *rate.Limiter
}

// NewDispatcher returns a new Dispatcher
// perSecond limits the rate of deliveries across all recipients; use 0 to disable the limit
func NewDispatcher(sender Sender, timeout time.Duration, perSecond float64) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	d := &Dispatcher{
		log:     logrus.WithField("component", "dispatcher"),
		sender:  sender,
		timeout: timeout,
	}
	if perSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return d
}

// Deliver sends a message to a single recipient
// Errors are returned as *DeliveryError, after being logged
func (d *Dispatcher) Deliver(ctx context.Context, recipient int64, feedURL string, msg *Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.deliver(ctx, recipient, msg)
	if err != nil {
		metrics.Deliveries.WithLabelValues("error").Inc()
		d.log.WithFields(logrus.Fields{
			"subscriber": recipient,
			"feed":       feedURL,
		}).Warnf("Error delivering update: %s", err)
		return &DeliveryError{
			Recipient: recipient,
			FeedURL:   feedURL,
			Err:       err,
		}
	}

	metrics.Deliveries.WithLabelValues("ok").Inc()
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, recipient int64, msg *Message) error {
	if d.limiter != nil {
		err := d.limiter.Wait(ctx)
		if err != nil {
			return err
		}
	}
	return d.sender.Send(ctx, recipient, msg)
}
