package oauth

import (
	"errors"
	"fmt"
)

// ErrExchange matches every *ExchangeError via errors.Is.
var ErrExchange = errors.New("oauth exchange failed")

// ErrStateMismatch is reported when StrictState is on and the returned state
// differs from the configured one.
var ErrStateMismatch = errors.New("oauth state mismatch")

// ErrInsufficientIdentity is reported when the backend answered but the mapped
// identity does not satisfy the configured scope.
var ErrInsufficientIdentity = errors.New("oauth exchange returned insufficient identity")

// ErrLoginInProgress is returned when Init or Login is re-entered on a
// controller whose previous call has not finished.
var ErrLoginInProgress = errors.New("oauth login already in progress")

// ExchangeError is handed to OnExchangeFailure. Op names the step that failed.
type ExchangeError struct {
	Op  string
	Err error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("oauth exchange: %s: %v", e.Op, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrExchange) true for any *ExchangeError.
func (e *ExchangeError) Is(target error) bool { return target == ErrExchange }

// StatusError is returned by HTTPTransport for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("exchange endpoint returned %d", e.Code)
	}
	return fmt.Sprintf("exchange endpoint returned %d: %s", e.Code, e.Body)
}
