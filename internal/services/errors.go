package services

import (
	"errors"
	"fmt"
)

// Typed failures recovered at the operation boundary. Handlers map these to
// client errors; anything else is a server error.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientReserve  = errors.New("insufficient reserve")
	ErrLoanNotOpen          = errors.New("loan not open for funding")
	ErrInvalidShareCount    = errors.New("invalid share count")
	ErrLoanNotFundable      = errors.New("loan not accepting repayments")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidReference     = errors.New("unknown reference type")
	ErrSettlementNotPending = errors.New("settlement not found or already cleared")
	ErrLoanNotFound         = errors.New("loan not found")
	ErrFundingCodesOffline  = errors.New("funding codes unavailable")
)

// PersistenceError wraps a transaction/commit failure. The operation applied
// nothing; callers may retry at their discretion.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistenceErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsClientError reports whether err belongs to the taxonomy reported as a
// 4xx-equivalent failure rather than a server error.
func IsClientError(err error) bool {
	switch {
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInsufficientReserve),
		errors.Is(err, ErrLoanNotOpen),
		errors.Is(err, ErrInvalidShareCount),
		errors.Is(err, ErrLoanNotFundable),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidReference),
		errors.Is(err, ErrSettlementNotPending),
		errors.Is(err, ErrLoanNotFound):
		return true
	}
	return false
}
