package makerworld

import (
	"fmt"
	"time"
)

// AuthError means the session cookie was rejected or expired, the user has
// to supply a new one.
type AuthError struct {
	URL    string
	Status int
	Reason string
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("authentication failed: %s", e.Reason)
	}
	return fmt.Sprintf("authentication failed (status %d) at %s: %s", e.Status, e.URL, e.Reason)
}

// NetworkError is a transport failure, timeout or unexpected status that
// persisted after retries.
type NetworkError struct {
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("request %s failed with status %d after %d attempt(s): %s", e.URL, e.Status, e.Attempts, e.Err.Error())
	case e.Err != nil:
		return fmt.Sprintf("request %s failed after %d attempt(s): %s", e.URL, e.Attempts, e.Err.Error())
	}
	return fmt.Sprintf("request %s failed with status %d after %d attempt(s)", e.URL, e.Status, e.Attempts)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RateLimitError means the server asked us to slow down, RetryAfter is 0
// when the server gave no hint.
type RateLimitError struct {
	URL        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter <= 0 {
		return fmt.Sprintf("rate limited at %s", e.URL)
	}
	return fmt.Sprintf("rate limited at %s, retry after %s", e.URL, e.RetryAfter)
}
