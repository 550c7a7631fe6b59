package service

import (
	"errors"
	"fmt"

	"pr_digest_bot/internal/subscription"
)

// ErrNotFound is returned for ids that match no subscription.
var ErrNotFound = subscription.ErrNotFound

// ErrForbidden is returned when a room acts on another room's subscription.
var ErrForbidden = errors.New("subscription belongs to another room")

// ValidationError rejects a request before anything is stored.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FetchError reports a digest that could not be built.
type FetchError struct {
	RequestID int64
	Err       error
}

func (e *FetchError) Error() string {
	if e.RequestID == 0 {
		return fmt.Sprintf("build digest: %v", e.Err)
	}
	return fmt.Sprintf("build digest #%d: %v", e.RequestID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
