package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/stay-booking-payments/internal/model"
)

const bookingColumns = "b.id, b.property_id, b.user_id, b.start_date, b.end_date, b.total_price, b.status, b.created_at"

// BookingRepo persists bookings.  Bookings are written once by the booking
// service and afterwards only their status changes, inside the payment
// settlement transaction.
type BookingRepo struct {
	db *sqlx.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sqlx.DB) *BookingRepo { return &BookingRepo{db: db} }

// Create inserts b.  The ID is generated when empty and the status defaults
// to pending.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.BookingPending
	}
	const q = `INSERT INTO bookings (id, property_id, user_id, start_date, end_date, total_price, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		b.ID, b.PropertyID, b.UserID,
		b.StartDate.Format(model.DateLayout), b.EndDate.Format(model.DateLayout),
		b.TotalPrice.StringFixed(2), b.Status)
	return err
}

// GetByID returns ErrNotFound when the booking does not exist.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (model.Booking, error) {
	var b model.Booking
	err := r.db.GetContext(ctx, &b, "SELECT "+bookingColumns+" FROM bookings b WHERE b.id = ?", id)
	return b, notFound(err)
}

// GetDetail loads a booking together with its property name and the
// guest's contact data.
func (r *BookingRepo) GetDetail(ctx context.Context, id string) (model.BookingDetail, error) {
	const q = `SELECT ` + bookingColumns + `,
	                  p.name AS property_name,
	                  u.email AS guest_email, u.first_name AS guest_first_name, u.last_name AS guest_last_name
	           FROM bookings b
	           JOIN properties p ON p.id = b.property_id
	           JOIN users u ON u.id = b.user_id
	           WHERE b.id = ?`
	var d model.BookingDetail
	err := r.db.GetContext(ctx, &d, q, id)
	return d, notFound(err)
}

// LockTx takes a row lock on the booking for the rest of tx.  Payment
// settlement for one booking is serialized through this lock.
func (r *BookingRepo) LockTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	var got string
	err := tx.GetContext(ctx, &got, "SELECT id FROM bookings WHERE id = ? FOR UPDATE", id)
	return notFound(err)
}

// SetStatusTx updates the denormalized booking status within tx.
func (r *BookingRepo) SetStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status model.BookingStatus) error {
	_, err := tx.ExecContext(ctx, "UPDATE bookings SET status = ? WHERE id = ?", status, id)
	return err
}
