package market

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies renderer failures for retry policy decisions.
type FetchErrorKind string

// Fetch failure classes. Blocked triggers a cooldown and session rotation;
// Transient and Timeout are retried; NotFound is never retried.
const (
	FetchBlocked   FetchErrorKind = "blocked"
	FetchTimeout   FetchErrorKind = "timeout"
	FetchNotFound  FetchErrorKind = "not_found"
	FetchTransient FetchErrorKind = "transient"
)

// FetchError is the typed failure returned by the renderer.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err with a failure class.
func NewFetchError(kind FetchErrorKind, url string, err error) *FetchError {
	return &FetchError{Kind: kind, URL: url, Err: err}
}

// FetchKind extracts the failure class from err, defaulting to Transient
// for errors that did not originate in the renderer.
func FetchKind(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FetchTransient
}

// IsBlocked reports whether err carries the Blocked class.
func IsBlocked(err error) bool {
	return FetchKind(err) == FetchBlocked
}

// Retryable reports whether a fetch failure is worth another attempt.
func Retryable(err error) bool {
	switch FetchKind(err) {
	case FetchNotFound:
		return false
	default:
		return true
	}
}

// ErrNotFound is returned by store lookups when no Listing matches.
var ErrNotFound = errors.New("listing not found")

// ErrNotViable is returned by Upsert when the partial lacks the minimum
// field set (source id plus price or brand).
var ErrNotViable = errors.New("partial listing below minimum field set")
