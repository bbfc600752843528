package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Property is a listing owned by a host.  NightlyRate is stored as
// DECIMAL(10,2) and never passes through float64.
type Property struct {
	ID          string          `db:"id"`
	HostID      string          `db:"host_id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Location    string          `db:"location"`
	NightlyRate decimal.Decimal `db:"nightly_rate"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}
