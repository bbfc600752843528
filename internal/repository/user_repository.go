package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/stay-booking-payments/internal/model"
	"github.com/iliyamo/stay-booking-payments/internal/utils"
)

const userColumns = "id, email, first_name, last_name, password_hash, role, created_at"

type UserRepo struct{ db *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create hashes the password, inserts the user and fills in its ID.
func (r *UserRepo) Create(ctx context.Context, u *model.User, password string, cost int) error {
	u.Email = normalizeEmail(u.Email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.PasswordHash = hash
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO users (id, email, first_name, last_name, password_hash, role) VALUES (?,?,?,?,?,?)",
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.Role)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email))
	return u, notFound(err)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return u, notFound(err)
}

// UpsertGuest returns the guest fallback user identified by email, creating
// it on first use.  Concurrent callers converge on the same row.
func (r *UserRepo) UpsertGuest(ctx context.Context, email string) (model.User, error) {
	email = normalizeEmail(email)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, role) VALUES (?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE id = id`,
		uuid.NewString(), email, "Guest", "User", model.RoleGuest)
	if err != nil {
		return model.User{}, err
	}
	return r.GetByEmail(ctx, email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
