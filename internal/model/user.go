package model

import "time"

// Roles a user may hold.  Guests book stays, hosts list properties.
const (
	RoleGuest = "guest"
	RoleHost  = "host"
	RoleAdmin = "admin"
)

// User represents an application user record as stored in the `users`
// table.  The json tags are omitted because handlers define their own
// response types.
//
// Fields:
//
//	ID           – UUID primary key.
//	Email        – unique, lower-cased email address.
//	FirstName    – given name, forwarded to the payment gateway.
//	LastName     – family name, forwarded to the payment gateway.
//	PasswordHash – bcrypt hash; empty for the guest fallback user.
//	Role         – guest, host or admin.
//	CreatedAt    – timestamp of creation.
type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

// Actor is the identity on whose behalf an operation runs.  It is always
// passed explicitly; there is no ambient "current user".  A guest actor has
// no UserID until it is resolved to the guest fallback user.
type Actor struct {
	UserID string
	Role   string
	Guest  bool
}

// GuestActor is the sentinel for unauthenticated callers.
func GuestActor() Actor { return Actor{Role: RoleGuest, Guest: true} }

// IsAdmin reports whether the actor may act on any booking.
func (a Actor) IsAdmin() bool { return !a.Guest && a.Role == RoleAdmin }
