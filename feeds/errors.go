package feeds

import (
	"errors"
	"fmt"
)

// Error returned when a URL can't be used as a feed source
var ErrInvalidURL = errors.New("invalid feed URL")

// Error returned by the client when the server reports the feed hasn't changed since the last fetch
var ErrNotModified = errors.New("feed not modified")

// FetchError is returned when a feed can't be retrieved: network errors, timeouts, bad status codes
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("error fetching feed %s: %s", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError is returned when a document was retrieved but its entries couldn't be extracted
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing feed %s: %s", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsFetchFailure returns true for errors that should cause a feed to be skipped for the current pass
// Parse errors are treated like fetch errors
func IsFetchFailure(err error) bool {
	var fe *FetchError
	var pe *ParseError
	return errors.As(err, &fe) || errors.As(err, &pe)
}
