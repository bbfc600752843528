package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order.  Every statement is idempotent.
//
// payments.completed_booking_id is non-NULL only for Completed rows, so the
// unique index on it allows at most one Completed payment per booking while
// leaving any number of Pending/Failed attempts.
var schema = []struct {
	name string
	stmt string
}{
	{"users", `
CREATE TABLE IF NOT EXISTS users (
	id            CHAR(36)     NOT NULL PRIMARY KEY,
	email         VARCHAR(255) NOT NULL,
	first_name    VARCHAR(100) NOT NULL DEFAULT '',
	last_name     VARCHAR(100) NOT NULL DEFAULT '',
	password_hash VARCHAR(255) NOT NULL DEFAULT '',
	role          ENUM('guest','host','admin') NOT NULL DEFAULT 'guest',
	created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY uq_users_email (email)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"properties", `
CREATE TABLE IF NOT EXISTS properties (
	id           CHAR(36)      NOT NULL PRIMARY KEY,
	host_id      CHAR(36)      NOT NULL,
	name         VARCHAR(255)  NOT NULL,
	description  TEXT          NOT NULL,
	location     VARCHAR(255)  NOT NULL,
	nightly_rate DECIMAL(10,2) NOT NULL,
	created_at   DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	CONSTRAINT fk_properties_host FOREIGN KEY (host_id) REFERENCES users(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"bookings", `
CREATE TABLE IF NOT EXISTS bookings (
	id          CHAR(36)      NOT NULL PRIMARY KEY,
	property_id CHAR(36)      NOT NULL,
	user_id     CHAR(36)      NOT NULL,
	start_date  DATE          NOT NULL,
	end_date    DATE          NOT NULL,
	total_price DECIMAL(10,2) NOT NULL,
	status      ENUM('pending','confirmed','canceled') NOT NULL DEFAULT 'pending',
	created_at  DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CONSTRAINT chk_bookings_range CHECK (start_date < end_date),
	CONSTRAINT fk_bookings_property FOREIGN KEY (property_id) REFERENCES properties(id) ON DELETE CASCADE,
	CONSTRAINT fk_bookings_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"payments", `
CREATE TABLE IF NOT EXISTS payments (
	id           CHAR(36)      NOT NULL PRIMARY KEY,
	booking_id   CHAR(36)      NOT NULL,
	amount       DECIMAL(10,2) NOT NULL,
	currency     CHAR(3)       NOT NULL,
	tx_ref       VARCHAR(100)  NOT NULL,
	checkout_url VARCHAR(1024) NULL,
	status       ENUM('Pending','Completed','Failed') NOT NULL DEFAULT 'Pending',
	method       VARCHAR(20)   NOT NULL DEFAULT 'chapa',
	created_at   DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	completed_booking_id CHAR(36) GENERATED ALWAYS AS (IF(status = 'Completed', booking_id, NULL)) STORED,
	UNIQUE KEY uq_payments_tx_ref (tx_ref),
	UNIQUE KEY uq_payments_completed_booking (completed_booking_id),
	KEY idx_payments_booking (booking_id),
	CONSTRAINT fk_payments_booking FOREIGN KEY (booking_id) REFERENCES bookings(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
}

// Migrate creates the tables the service needs when they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, s := range schema {
		if _, err := db.ExecContext(ctx, s.stmt); err != nil {
			return fmt.Errorf("failed to create %s table: %w", s.name, err)
		}
	}
	return nil
}
