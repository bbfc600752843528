package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/stay-booking-payments/internal/model"
)

const paymentColumns = "id, booking_id, amount, currency, tx_ref, checkout_url, status, method, created_at, updated_at"

// PaymentRepo persists payment attempts.  No statement in this file ever
// rewrites amount or tx_ref.  status changes on settlement and checkout_url
// can be filled in once while it is still empty.
type PaymentRepo struct {
	db *sqlx.DB
}

// NewPaymentRepo returns a PaymentRepo bound to the given database.
func NewPaymentRepo(db *sqlx.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// Create inserts p.  A transaction reference that already exists yields
// ErrDuplicate so callers can re-read the existing row.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.PaymentPending
	}
	if p.Method == "" {
		p.Method = model.MethodChapa
	}
	const q = `INSERT INTO payments (id, booking_id, amount, currency, tx_ref, checkout_url, status, method)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		p.ID, p.BookingID, p.Amount.StringFixed(2), p.Currency, p.TxRef, p.CheckoutURL, p.Status, p.Method)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetByTxRef returns ErrNotFound for an unknown reference.
func (r *PaymentRepo) GetByTxRef(ctx context.Context, txRef string) (model.Payment, error) {
	var p model.Payment
	err := r.db.GetContext(ctx, &p, "SELECT "+paymentColumns+" FROM payments WHERE tx_ref = ?", txRef)
	return p, notFound(err)
}

// ListByBooking returns every attempt for a booking, oldest first.
func (r *PaymentRepo) ListByBooking(ctx context.Context, bookingID string) ([]model.Payment, error) {
	items := make([]model.Payment, 0)
	err := r.db.SelectContext(ctx, &items,
		"SELECT "+paymentColumns+" FROM payments WHERE booking_id = ? ORDER BY created_at, id", bookingID)
	return items, err
}

// SetCheckoutURL records the checkout of a Pending payment that was stored
// without one.  It reports false when the row is not Pending or already has
// a checkout URL; nothing is changed in that case.
func (r *PaymentRepo) SetCheckoutURL(ctx context.Context, txRef, checkoutURL string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE payments SET checkout_url = ? WHERE tx_ref = ? AND status = ? AND checkout_url IS NULL",
		checkoutURL, txRef, model.PaymentPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PaymentRepo) getByTxRefTx(ctx context.Context, tx *sqlx.Tx, txRef string) (model.Payment, error) {
	var p model.Payment
	err := tx.GetContext(ctx, &p, "SELECT "+paymentColumns+" FROM payments WHERE tx_ref = ?", txRef)
	return p, notFound(err)
}

// countCompletedTx counts Completed payments of a booking other than txRef.
func (r *PaymentRepo) countCompletedTx(ctx context.Context, tx *sqlx.Tx, bookingID, txRef string) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM payments WHERE booking_id = ? AND status = ? AND tx_ref <> ?",
		bookingID, model.PaymentCompleted, txRef)
	return n, err
}

// transitionTx moves a Pending payment to status.  It reports false when the
// row was no longer Pending, meaning another caller already settled it.
func (r *PaymentRepo) transitionTx(ctx context.Context, tx *sqlx.Tx, txRef string, status model.PaymentStatus) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE payments SET status = ? WHERE tx_ref = ? AND status = ?",
		status, txRef, model.PaymentPending)
	if err != nil {
		if isDuplicate(err) {
			return false, ErrConflict
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
