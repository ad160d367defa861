package models

import "time"

// Model for the subscriptions table
type Subscription struct {
	ID           int64  `db:"subscription_id"`
	SubscriberID int64  `db:"subscriber_id"`
	FeedURL      string `db:"feed_url"`
	FeedHash     string `db:"feed_hash"`
	FeedTitle    string `db:"feed_title"`
	// Identity of the most recent entry seen by this subscriber; nil if the feed was never checked
	Watermark *string   `db:"watermark"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
