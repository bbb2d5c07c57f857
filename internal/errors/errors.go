// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrRateLimited           = errors.New("rate limited")
	ErrQuoteUnavailable      = errors.New("quote unavailable")
	ErrDataNotFound          = errors.New("data not found")
	ErrConfigInvalid         = errors.New("invalid configuration")
	ErrDuplicateBatch        = errors.New("batch already ingested")
	ErrDuplicateNotification = errors.New("notification already recorded")
	ErrPositionNotFound      = errors.New("position not found")
	ErrAlertNotFound         = errors.New("alert not found")
	ErrDatabaseError         = errors.New("database error")
)

// QuoteError represents a failure fetching a quote from the market-data
// provider.
type QuoteError struct {
	Ticker string
	Status int
	Err    error
}

func (e *QuoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("quote error [%s]: provider returned status %d", e.Ticker, e.Status)
	}
	return fmt.Sprintf("quote error [%s]: %v", e.Ticker, e.Err)
}

func (e *QuoteError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrQuoteUnavailable
}

// NewQuoteError creates a new QuoteError.
func NewQuoteError(ticker string, status int, err error) *QuoteError {
	return &QuoteError{Ticker: ticker, Status: status, Err: err}
}

// NotifyError represents a failure delivering a notification. The sink
// records these on the notification row; it never raises them to callers.
type NotifyError struct {
	Channel string
	Err     error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify error [%s]: %v", e.Channel, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// NewNotifyError creates a new NotifyError.
func NewNotifyError(channel string, err error) *NotifyError {
	return &NotifyError{Channel: channel, Err: err}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
