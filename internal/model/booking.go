package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCanceled  BookingStatus = "canceled"
)

// DateLayout is the wire and storage format of booking dates.
const DateLayout = "2006-01-02"

// Booking is a guest's request to stay at a property between StartDate
// (inclusive) and EndDate (exclusive).  TotalPrice is derived from the
// property's nightly rate when the booking is created.
//
// A booking counts as confirmed if and only if it has a Completed payment;
// Status = confirmed is a denormalized copy written in the same transaction
// that completes the payment.
type Booking struct {
	ID         string          `db:"id"`
	PropertyID string          `db:"property_id"`
	UserID     string          `db:"user_id"`
	StartDate  time.Time       `db:"start_date"`
	EndDate    time.Time       `db:"end_date"`
	TotalPrice decimal.Decimal `db:"total_price"`
	Status     BookingStatus   `db:"status"`
	CreatedAt  time.Time       `db:"created_at"`
}

// Nights is the number of nights between the start and end date.
func (b Booking) Nights() int {
	return NightsBetween(b.StartDate, b.EndDate)
}

// NightsBetween counts calendar days from start to end, ignoring the time
// of day and the location offset.
func NightsBetween(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}

// BookingDetail is a booking joined with what notifications and payment
// summaries need to show: the property name and the guest's contact data.
type BookingDetail struct {
	Booking
	PropertyName   string `db:"property_name"`
	GuestEmail     string `db:"guest_email"`
	GuestFirstName string `db:"guest_first_name"`
	GuestLastName  string `db:"guest_last_name"`
}
