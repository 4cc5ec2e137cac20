package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// contention
	ErrSeatUnavailable = errors.New("one or more selected seats are not available")

	// validation
	ErrInvalidSeatSet  = errors.New("invalid seat selection")
	ErrAmountMismatch  = errors.New("amount does not match the reservation total")
	ErrShowNotBookable = errors.New("booking for this show is closed")
	ErrShowNotFound    = errors.New("show not found")

	// temporal
	ErrReservationExpired = errors.New("reservation has expired, please select your seats again")

	// ownership
	ErrReservationNotFound = errors.New("reservation not found")
	ErrNotOwner            = errors.New("reservation belongs to another requester")
	ErrTokenMismatch       = errors.New("seat is not held by this reservation")

	// state
	ErrReservationNotPending = errors.New("reservation is not awaiting payment initiation")
	ErrAlreadyConfirmed      = errors.New("reservation is already confirmed")
	ErrInvalidState          = errors.New("seat is not in a state that allows this operation")
	ErrInvalidTransition     = errors.New("invalid reservation state transition")

	// external dependency
	ErrGatewayVerificationFailed = errors.New("payment could not be verified with the gateway")
	ErrGatewayUnavailable        = errors.New("payment gateway is unavailable")

	// integrity
	ErrIntegrity = errors.New("payment captured but seats could not be booked")
)

// SeatUnavailableError lists the requested seats that blocked a hold.
type SeatUnavailableError struct {
	Seats []SeatID
}

func (e *SeatUnavailableError) Error() string {
	labels := make([]string, len(e.Seats))
	for i, s := range e.Seats {
		labels[i] = s.String()
	}

	return fmt.Sprintf("%s: %s", ErrSeatUnavailable, strings.Join(labels, ", "))
}

func (e *SeatUnavailableError) Is(target error) bool {
	return target == ErrSeatUnavailable
}

// IntegrityError is raised when the gateway settled a payment whose seats
// could not be committed. It always requires manual reconciliation.
type IntegrityError struct {
	Token    string
	IntentID string
	Err      error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s (reservation %s, intent %s): %v", ErrIntegrity, e.Token, e.IntentID, e.Err)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}
