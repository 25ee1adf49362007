package coordinator

import (
	"errors"
	"makerworld-stats/internal/makerworld"
	"makerworld-stats/internal/parser"
	"time"
)

type Reason string

const (
	ReasonScheduled Reason = "SCHEDULED"
	ReasonManual    Reason = "MANUAL"
)

type State string

const (
	StateIdle      State = "IDLE"
	StateFetching  State = "FETCHING"
	StateParsing   State = "PARSING"
	StatePublished State = "PUBLISHED"
	StateError     State = "ERROR"
)

type ErrorKind string

const (
	KindAuth      ErrorKind = "AUTH"
	KindNetwork   ErrorKind = "NETWORK"
	KindRateLimit ErrorKind = "RATE_LIMIT"
	KindParse     ErrorKind = "PARSE"
)

type Severity string

const (
	// SeverityWarning is used when a partial snapshot was still published.
	SeverityWarning    Severity = "WARNING"
	SeverityTransient  Severity = "TRANSIENT"
	SeverityPersistent Severity = "PERSISTENT"
)

// ErrorState describes the most recent failed (or partial) cycle.
type ErrorState struct {
	Kind      ErrorKind
	Message   string
	Timestamp time.Time
	// Consecutive counts the cycles in a row that failed with the same kind.
	Consecutive    int
	Severity       Severity
	ReauthRequired bool
	// RetryAfter is the backoff applied after a rate limit.
	RetryAfter time.Duration
}

var (
	ErrClosed        = errors.New("coordinator is closed")
	ErrInBackoff     = errors.New("scheduled update skipped during rate limit backoff")
	ErrCycleDeadline = errors.New("cycle deadline exceeded")
)

// Classify maps an error returned by a cycle to its kind, anything
// unrecognized is treated as a network failure.
func Classify(err error) ErrorKind {
	var authErr *makerworld.AuthError
	var rateErr *makerworld.RateLimitError
	var parseErr *parser.ParseError
	switch {
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &rateErr):
		return KindRateLimit
	case errors.As(err, &parseErr):
		return KindParse
	}
	return KindNetwork
}
