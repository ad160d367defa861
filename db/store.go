package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/ItalyPaleAle/rss-notifier/models"
)

var subscriptionColumns = []string{
	"subscription_id",
	"subscriber_id",
	"feed_url",
	"feed_hash",
	"feed_title",
	"watermark",
	"created_at",
	"updated_at",
}

// Store persists subscriptions and their watermarks
type Store struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

// NewStore returns a Store for a database opened with Connect
func NewStore(db *sqlx.DB) *Store {
	qb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if db.DriverName() == DriverPostgres {
		qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &Store{
		db: db,
		qb: qb,
	}
}

// ListFeeds returns the URLs of all feeds with at least one subscriber
func (s *Store) ListFeeds(ctx context.Context) ([]string, error) {
	query, args, err := s.qb.
		Select("feed_url").
		Distinct().
		From("subscriptions").
		OrderBy("feed_url").
		ToSql()
	if err != nil {
		return nil, storeError("ListFeeds", err)
	}

	res := []string{}
	err = s.db.SelectContext(ctx, &res, query, args...)
	if err != nil {
		return nil, storeError("ListFeeds", err)
	}
	return res, nil
}

// ListSubscribers returns all subscriptions to a feed
func (s *Store) ListSubscribers(ctx context.Context, feedURL string) ([]models.Subscription, error) {
	query, args, err := s.qb.
		Select(subscriptionColumns...).
		From("subscriptions").
		Where(sq.Eq{
			"feed_hash": models.FeedKey(feedURL),
			"feed_url":  feedURL,
		}).
		OrderBy("subscription_id").
		ToSql()
	if err != nil {
		return nil, storeError("ListSubscribers", err)
	}

	res := []models.Subscription{}
	err = s.db.SelectContext(ctx, &res, query, args...)
	if err != nil {
		return nil, storeError("ListSubscribers", err)
	}
	return res, nil
}

// ListSubscriptions returns all subscriptions of a subscriber, oldest first
func (s *Store) ListSubscriptions(ctx context.Context, subscriberID int64) ([]models.Subscription, error) {
	query, args, err := s.qb.
		Select(subscriptionColumns...).
		From("subscriptions").
		Where(sq.Eq{"subscriber_id": subscriberID}).
		OrderBy("created_at", "subscription_id").
		ToSql()
	if err != nil {
		return nil, storeError("ListSubscriptions", err)
	}

	res := []models.Subscription{}
	err = s.db.SelectContext(ctx, &res, query, args...)
	if err != nil {
		return nil, storeError("ListSubscriptions", err)
	}
	return res, nil
}

// GetWatermark returns the watermark of a subscription
// The result is nil if the feed was never checked for this subscriber
func (s *Store) GetWatermark(ctx context.Context, subscriberID int64, feedURL string) (*string, error) {
	query, args, err := s.qb.
		Select("watermark").
		From("subscriptions").
		Where(subscriptionKey(subscriberID, feedURL)).
		ToSql()
	if err != nil {
		return nil, storeError("GetWatermark", err)
	}

	var watermark sql.NullString
	err = s.db.GetContext(ctx, &watermark, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSubscriptionNotFound
	} else if err != nil {
		return nil, storeError("GetWatermark", err)
	}
	if !watermark.Valid {
		return nil, nil
	}
	return &watermark.String, nil
}

// SetWatermark updates the watermark of a single subscription
func (s *Store) SetWatermark(ctx context.Context, subscriberID int64, feedURL string, value string) error {
	query, args, err := s.qb.
		Update("subscriptions").
		Set("watermark", value).
		Set("updated_at", time.Now().UTC()).
		Where(subscriptionKey(subscriberID, feedURL)).
		ToSql()
	if err != nil {
		return storeError("SetWatermark", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError("SetWatermark", err)
	}
	return checkAffected("SetWatermark", res)
}

// AddSubscription stores a new subscription, setting its ID and timestamps
// Returns models.ErrAlreadySubscribed if the subscriber is already subscribed to the feed
func (s *Store) AddSubscription(ctx context.Context, sub *models.Subscription) error {
	now := time.Now().UTC()
	if sub.FeedHash == "" {
		sub.FeedHash = models.FeedKey(sub.FeedURL)
	}
	query, args, err := s.qb.
		Insert("subscriptions").
		Columns("subscriber_id", "feed_url", "feed_hash", "feed_title", "watermark", "created_at", "updated_at").
		Values(sub.SubscriberID, sub.FeedURL, sub.FeedHash, sub.FeedTitle, sub.Watermark, now, now).
		Suffix("RETURNING subscription_id").
		ToSql()
	if err != nil {
		return storeError("AddSubscription", err)
	}

	var id int64
	err = s.db.GetContext(ctx, &id, query, args...)
	if isUniqueViolation(err) {
		return models.ErrAlreadySubscribed
	} else if err != nil {
		return storeError("AddSubscription", err)
	}

	sub.ID = id
	sub.CreatedAt = now
	sub.UpdatedAt = now
	return nil
}

// RemoveSubscription deletes a subscription
// Returns models.ErrSubscriptionNotFound if it doesn't exist
func (s *Store) RemoveSubscription(ctx context.Context, subscriberID int64, feedURL string) error {
	query, args, err := s.qb.
		Delete("subscriptions").
		Where(subscriptionKey(subscriberID, feedURL)).
		ToSql()
	if err != nil {
		return storeError("RemoveSubscription", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError("RemoveSubscription", err)
	}
	return checkAffected("RemoveSubscription", res)
}

func subscriptionKey(subscriberID int64, feedURL string) sq.Eq {
	return sq.Eq{
		"subscriber_id": subscriberID,
		"feed_url":      feedURL,
	}
}

func checkAffected(op string, res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return storeError(op, err)
	}
	if affected == 0 {
		return models.ErrSubscriptionNotFound
	}
	return nil
}

func storeError(op string, err error) error {
	return &models.StoreError{
		Op:  op,
		Err: err,
	}
}

// Returns true if the error is a violation of a unique constraint, for any of the supported drivers
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
