// Package gateway is a narrow client for the external payment provider's
// "initialize transaction" and "verify transaction" operations.
//
// Nothing in this package panics or leaks provider-specific error shapes:
// initiation problems come back as *InitiationError, verification transport
// problems as ErrUnavailable, and a definitive provider answer as a Status.
package gateway

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the provider's verdict on a transaction.
type Status int

const (
	StatusPending Status = iota // not settled yet, ask again later
	StatusSuccess
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// ErrInitiationFailed is wrapped by every *InitiationError.
var ErrInitiationFailed = errors.New("gateway initiation failed")

// ErrUnavailable means the provider could not be asked: transport error,
// timeout, 5xx, rate limiting or an unreadable body.  It says nothing about
// the transaction itself and is safe to retry.
var ErrUnavailable = errors.New("gateway unavailable")

// InitiationError carries whatever the provider answered so it can be shown
// to the payer.  Details is nil when the provider was never reached.
type InitiationError struct {
	Reason  string
	Details map[string]any
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInitiationFailed, e.Reason)
}

func (e *InitiationError) Unwrap() error { return ErrInitiationFailed }

// InitiateRequest describes a checkout to open at the provider.
type InitiateRequest struct {
	TxRef       string
	Amount      decimal.Decimal
	Currency    string
	Email       string
	FirstName   string
	LastName    string
	CallbackURL string
	ReturnURL   string
	Title       string
}

// InitiateResult is the provider's acceptance of a checkout.
type InitiateResult struct {
	CheckoutURL string
}
