package notify

import "fmt"

// DeliveryError is returned when a message could not be sent to a subscriber
type DeliveryError struct {
	Recipient int64
	FeedURL   string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("error delivering update for feed %s to %d: %s", e.FeedURL, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
