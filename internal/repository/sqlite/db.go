// Package sqlite opens the embedded SQLite flavour of the SQL store. It backs
// local runs and the repository tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository/sqlstore"
)

// DriverName is the database/sql name of the pure-Go driver.
const DriverName = "sqlite"

// Money is stored as TEXT so decimals round-trip exactly.
const schema = `
CREATE TABLE IF NOT EXISTS products (
    id          TEXT PRIMARY KEY,
    domain      TEXT NOT NULL,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    images      TEXT NOT NULL DEFAULT '[]',
    price       TEXT NOT NULL DEFAULT '0',
    quantity    INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    sold        INTEGER NOT NULL DEFAULT 0 CHECK (sold >= 0)
);
CREATE INDEX IF NOT EXISTS idx_products_domain ON products(domain);

CREATE TABLE IF NOT EXISTS vouchers (
    id               TEXT PRIMARY KEY,
    domain           TEXT NOT NULL,
    voucher_name     TEXT NOT NULL,
    voucher_code     TEXT NOT NULL,
    discount_percent TEXT NOT NULL,
    max_discount     TEXT NOT NULL,
    min_app_value    TEXT NOT NULL DEFAULT '0',
    start_at         TIMESTAMP NOT NULL,
    expire_at        TIMESTAMP NOT NULL,
    deleted_at       TIMESTAMP,
    created_at       TIMESTAMP NOT NULL,
    UNIQUE (domain, voucher_code)
);

CREATE TABLE IF NOT EXISTS orders (
    id                  TEXT PRIMARY KEY,
    domain              TEXT NOT NULL,
    user_email          TEXT NOT NULL,
    stage               TEXT NOT NULL DEFAULT 'pending',
    total_price         TEXT NOT NULL DEFAULT '0',
    voucher_id          TEXT NOT NULL DEFAULT '',
    voucher_discount    TEXT NOT NULL DEFAULT '0',
    price_after_voucher TEXT NOT NULL DEFAULT '0',
    phone               TEXT NOT NULL DEFAULT '',
    address             TEXT NOT NULL DEFAULT '',
    payment_method      TEXT NOT NULL DEFAULT '',
    note_cancel         TEXT NOT NULL DEFAULT '',
    stock_committed     INTEGER NOT NULL DEFAULT 0,
    created_at          TIMESTAMP NOT NULL,
    updated_at          TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_domain_stage ON orders(domain, stage);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(domain, user_email);

CREATE TABLE IF NOT EXISTS order_items (
    order_id    TEXT NOT NULL REFERENCES orders(id),
    position    INTEGER NOT NULL,
    product_id  TEXT NOT NULL,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    image       TEXT NOT NULL DEFAULT '',
    unit_price  TEXT NOT NULL DEFAULT '0',
    quantity    INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (order_id, position)
);

CREATE TABLE IF NOT EXISTS inventory_forms (
    id          TEXT PRIMARY KEY,
    domain      TEXT NOT NULL,
    form_type   TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    version     INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS inventory_form_lines (
    form_id    TEXT NOT NULL REFERENCES inventory_forms(id),
    position   INTEGER NOT NULL,
    product_id TEXT NOT NULL,
    quantity   INTEGER NOT NULL,
    PRIMARY KEY (form_id, position)
);
`

// Dialect is the SQLite flavour of the SQL store.
var Dialect = sqlstore.Dialect{
	Name:              "sqlite",
	IsUniqueViolation: isUniqueViolation,
	Schema:            schema,
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

// Open opens (or creates) the database at path and applies the schema.
// Pass ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*sqlstore.Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// One connection: a single writer, and an in-memory database is private
	// to the connection that created it.
	db.SetMaxOpenConns(1)

	store := sqlstore.New(db, Dialect)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	slog.Info("Database connected and migrated", "driver", Dialect.Name, "path", path)
	return store, nil
}
