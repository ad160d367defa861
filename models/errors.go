package models

import (
	"errors"
	"fmt"
)

// Error returned when the subscriber is already subscribed to the feed
var ErrAlreadySubscribed = errors.New("already subscribed")

// Error returned when a subscription does not exist
var ErrSubscriptionNotFound = errors.New("subscription not found")

// StoreError is returned when the persistence layer fails
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error in %s: %s", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
