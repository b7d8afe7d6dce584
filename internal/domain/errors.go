package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInsufficientData is returned when a bar history is empty. It is
// recoverable: the orchestrator falls back to the last traded quote instead
// of failing the position.
var ErrInsufficientData = errors.New("insufficient price data")

// AmbiguousExpiryError means a weekly underlying was given a bare month-name
// hint. A month holds four or five weekly expiries, so the hint cannot
// select a contract; guessing one silently is exactly the bug class this
// error exists to prevent.
type AmbiguousExpiryError struct {
	Symbol string
	Hint   string
}

func (e *AmbiguousExpiryError) Error() string {
	return fmt.Sprintf("ambiguous expiry for weekly underlying %s: hint %q needs an exact date", e.Symbol, e.Hint)
}

type PastExpiryError struct {
	Symbol string
	Expiry time.Time
}

func (e *PastExpiryError) Error() string {
	return fmt.Sprintf("expiry %s for %s is in the past", e.Expiry.Format(ExpiryDateFormat), e.Symbol)
}

type RuleNotFoundError struct {
	Symbol string
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("no listing rule for underlying %q", e.Symbol)
}

// GatewayError wraps a broker call failure. The worker logs it and retries
// on the next tick; the locally computed state is never discarded.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
