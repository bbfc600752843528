package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrBookingNotFound is returned by Initiate for an unknown booking.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrPaymentInitiationFailed is wrapped by every *InitiationFailedError.
	ErrPaymentInitiationFailed = errors.New("payment initiation failed")

	// ErrGatewayUnavailable means the provider could not be asked.  The
	// payment is left Pending and the call may be retried.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrUnknownTransaction is returned when a transaction reference matches
	// no payment and no booking.
	ErrUnknownTransaction = errors.New("unknown transaction reference")

	// ErrAlreadyPaid is returned when the booking already has a Completed
	// payment.
	ErrAlreadyPaid = errors.New("booking already paid")

	// ErrPaymentInProgress is returned by Initiate when the booking has a
	// Pending payment that was opened outside this service and carries no
	// checkout URL to hand back.
	ErrPaymentInProgress = errors.New("payment already in progress")
)

// InitiationFailedError reports a checkout the gateway refused or never
// answered.  Details holds the provider's payload, if any.
type InitiationFailedError struct {
	Details map[string]any
	cause   error
}

func (e *InitiationFailedError) Error() string {
	if e.cause == nil {
		return ErrPaymentInitiationFailed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrPaymentInitiationFailed, e.cause)
}

func (e *InitiationFailedError) Unwrap() error { return ErrPaymentInitiationFailed }
