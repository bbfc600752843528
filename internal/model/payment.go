package model

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the settlement state of one payment attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentCompleted PaymentStatus = "Completed"
	PaymentFailed    PaymentStatus = "Failed"
)

// Terminal reports whether no further transition is possible for the
// transaction reference.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

// Payment method tags.
const (
	MethodChapa      = "chapa"
	MethodCreditCard = "credit_card"
	MethodPayPal     = "paypal"
	MethodStripe     = "stripe"
)

// Payment is one attempt to collect a booking's total price through the
// gateway.  TxRef correlates the row with the gateway's record and is
// unique.  Once Status is Completed, Amount and TxRef never change.
type Payment struct {
	ID          string          `db:"id"`
	BookingID   string          `db:"booking_id"`
	Amount      decimal.Decimal `db:"amount"`
	Currency    string          `db:"currency"`
	TxRef       string          `db:"tx_ref"`
	CheckoutURL sql.NullString  `db:"checkout_url"`
	Status      PaymentStatus   `db:"status"`
	Method      string          `db:"method"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}
