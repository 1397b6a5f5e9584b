package status

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrEventNotFound  = fmt.Errorf("event: %w", ErrNotFound)
	ErrTicketNotFound = fmt.Errorf("ticket: %w", ErrNotFound)
	ErrHoldNotFound   = fmt.Errorf("hold: %w", ErrNotFound)

	ErrTicketsDisabled     = errors.New("event: tickets are not enabled")
	ErrSoldOut             = errors.New("event: tickets sold out")
	ErrAllocationExhausted = errors.New("ticket number: no free number found")
	ErrHoldConflict        = errors.New("hold: ticket number already held")

	ErrAlreadyCheckedIn = errors.New("ticket: already checked in")
	ErrNotActive        = errors.New("ticket: not active")
	ErrInvalidCode      = errors.New("ticket: invalid verification code")
	ErrAlreadyCancelled = errors.New("ticket: already cancelled")
	ErrAlreadyRefunded  = errors.New("ticket: already refunded")

	ErrInvalidQRPayload = errors.New("qr: invalid payload")
	ErrEventMismatch    = errors.New("qr: ticket belongs to another event")
	ErrTooManyAttempts  = errors.New("check-in: too many attempts")

	ErrStorageFailure = errors.New("storage: operation failed")
)

// Storage wraps a backend error so callers can match ErrStorageFailure while
// keeping the original cause.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}
