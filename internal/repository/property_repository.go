package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/stay-booking-payments/internal/model"
)

const propertyColumns = "id, host_id, name, description, location, nightly_rate, created_at, updated_at"

// PropertyRepo stores host listings.  Only the fields the booking flow
// needs are exposed; listing management beyond create/read is out of scope.
type PropertyRepo struct {
	db *sqlx.DB
}

// NewPropertyRepo returns a PropertyRepo bound to the given database.
func NewPropertyRepo(db *sqlx.DB) *PropertyRepo { return &PropertyRepo{db: db} }

// Create inserts p and fills in its ID when empty.
func (r *PropertyRepo) Create(ctx context.Context, p *model.Property) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO properties (id, host_id, name, description, location, nightly_rate) VALUES (?,?,?,?,?,?)`,
		p.ID, p.HostID, p.Name, p.Description, p.Location, p.NightlyRate.StringFixed(2))
	return err
}

// GetByID returns ErrNotFound when no property has the given id.
func (r *PropertyRepo) GetByID(ctx context.Context, id string) (model.Property, error) {
	var p model.Property
	err := r.db.GetContext(ctx, &p, "SELECT "+propertyColumns+" FROM properties WHERE id = ?", id)
	return p, notFound(err)
}

// List returns properties newest first.
func (r *PropertyRepo) List(ctx context.Context, limit, offset int) ([]model.Property, error) {
	items := make([]model.Property, 0)
	err := r.db.SelectContext(ctx, &items,
		"SELECT "+propertyColumns+" FROM properties ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		limit, offset)
	return items, err
}
