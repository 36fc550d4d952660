package reservation

import (
	"errors"
	"fmt"
)

var (
	ErrNightNotFound        = errors.New("night not found")
	ErrSalesClosed          = errors.New("ticket sales are closed")
	ErrInvalidQuantity      = errors.New("invalid ticket quantity")
	ErrRestrictedTier       = errors.New("tier not sold on this night")
	ErrNoTickets            = errors.New("no tickets requested")
	ErrBaseTierRequired     = errors.New("base tier required")
	ErrQuantityCeiling      = errors.New("per-tier quantity ceiling exceeded")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrMissingSession       = errors.New("session id is required")
)

// RejectionError is a business rule violation that the customer can act on.
// Reason is safe to show as-is.
type RejectionError struct {
	Code   error
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.Code }

// CapacityError reports that a pool cannot fit the request.
type CapacityError struct {
	Pool      string
	Label     string
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("Only %d %s ticket(s) remaining for this night", e.Remaining, e.Label)
}

func (e *CapacityError) Unwrap() error { return ErrInsufficientCapacity }

func reject(code error, format string, args ...any) error {
	return &RejectionError{Code: code, Reason: fmt.Sprintf(format, args...)}
}
