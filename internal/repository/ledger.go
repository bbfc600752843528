package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/stay-booking-payments/internal/model"
)

// Ledger is the source of truth for money state.  It combines the booking
// and payment repositories and owns the settlement transaction.
type Ledger struct {
	db       *sqlx.DB
	Bookings *BookingRepo
	Payments *PaymentRepo
}

// NewLedger wires a Ledger over db.
func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db, Bookings: NewBookingRepo(db), Payments: NewPaymentRepo(db)}
}

func (l *Ledger) BookingDetail(ctx context.Context, bookingID string) (model.BookingDetail, error) {
	return l.Bookings.GetDetail(ctx, bookingID)
}

func (l *Ledger) PaymentByTxRef(ctx context.Context, txRef string) (model.Payment, error) {
	return l.Payments.GetByTxRef(ctx, txRef)
}

func (l *Ledger) PaymentsForBooking(ctx context.Context, bookingID string) ([]model.Payment, error) {
	return l.Payments.ListByBooking(ctx, bookingID)
}

func (l *Ledger) CreatePayment(ctx context.Context, p *model.Payment) error {
	return l.Payments.Create(ctx, p)
}

// AttachCheckout fills in the checkout URL of a Pending payment that was
// recorded from a gateway reference before its Initiate finished, and
// returns the payment as stored afterwards.  A URL that is already present
// is kept.
func (l *Ledger) AttachCheckout(ctx context.Context, txRef, checkoutURL string) (model.Payment, error) {
	if _, err := l.Payments.SetCheckoutURL(ctx, txRef, checkoutURL); err != nil {
		return model.Payment{}, fmt.Errorf("attach checkout %s: %w", txRef, err)
	}
	return l.Payments.GetByTxRef(ctx, txRef)
}

// SettlePayment moves the Pending payment identified by txRef to status.
//
// The booking row is locked first, so concurrent settlements for the same
// booking run one at a time.  The update only matches a Pending row: the
// first caller gets won == true, every later caller gets won == false and
// the payment as the winner left it.  Completing a payment also flips the
// booking to confirmed.  Completing a second payment for an already paid
// booking fails with ErrConflict and changes nothing.
//
// The transaction runs at READ COMMITTED so that reads after the lock see
// what the previous holder committed rather than an older snapshot.
func (l *Ledger) SettlePayment(ctx context.Context, txRef string, status model.PaymentStatus) (p model.Payment, won bool, err error) {
	if !status.Terminal() {
		return model.Payment{}, false, fmt.Errorf("settle %s: %q is not a terminal status", txRef, status)
	}
	tx, err := l.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return model.Payment{}, false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	current, err := l.Payments.getByTxRefTx(ctx, tx, txRef)
	if err != nil {
		return model.Payment{}, false, err
	}
	if err := l.Bookings.LockTx(ctx, tx, current.BookingID); err != nil {
		return model.Payment{}, false, fmt.Errorf("lock booking %s: %w", current.BookingID, err)
	}
	if status == model.PaymentCompleted {
		n, err := l.Payments.countCompletedTx(ctx, tx, current.BookingID, txRef)
		if err != nil {
			return model.Payment{}, false, err
		}
		if n > 0 {
			return current, false, ErrConflict
		}
	}
	won, err = l.Payments.transitionTx(ctx, tx, txRef, status)
	if err != nil {
		return model.Payment{}, false, err
	}
	if won && status == model.PaymentCompleted {
		if err := l.Bookings.SetStatusTx(ctx, tx, current.BookingID, model.BookingConfirmed); err != nil {
			return model.Payment{}, false, err
		}
	}
	p, err = l.Payments.getByTxRefTx(ctx, tx, txRef)
	if err != nil {
		return model.Payment{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return model.Payment{}, false, err
	}
	committed = true
	return p, won, nil
}
