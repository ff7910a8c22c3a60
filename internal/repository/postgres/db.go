package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository/sqlstore"
)

const schema = `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		images TEXT NOT NULL DEFAULT '[]',
		price NUMERIC(14, 2) NOT NULL DEFAULT 0,
		quantity INT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		sold INT NOT NULL DEFAULT 0 CHECK (sold >= 0)
	);
	CREATE INDEX IF NOT EXISTS idx_products_domain ON products(domain);

	CREATE TABLE IF NOT EXISTS vouchers (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		voucher_name TEXT NOT NULL,
		voucher_code TEXT NOT NULL,
		discount_percent NUMERIC(5, 2) NOT NULL,
		max_discount NUMERIC(14, 2) NOT NULL,
		min_app_value NUMERIC(14, 2) NOT NULL DEFAULT 0,
		start_at TIMESTAMPTZ NOT NULL,
		expire_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (domain, voucher_code)
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		user_email TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT 'pending',
		total_price NUMERIC(14, 2) NOT NULL DEFAULT 0,
		voucher_id TEXT NOT NULL DEFAULT '',
		voucher_discount NUMERIC(14, 2) NOT NULL DEFAULT 0,
		price_after_voucher NUMERIC(14, 2) NOT NULL DEFAULT 0,
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT '',
		note_cancel TEXT NOT NULL DEFAULT '',
		stock_committed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_orders_domain_stage ON orders(domain, stage);
	CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(domain, user_email);

	CREATE TABLE IF NOT EXISTS order_items (
		order_id TEXT NOT NULL REFERENCES orders(id),
		position INT NOT NULL,
		product_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		unit_price NUMERIC(14, 2) NOT NULL DEFAULT 0,
		quantity INT NOT NULL DEFAULT 1,
		PRIMARY KEY (order_id, position)
	);

	CREATE TABLE IF NOT EXISTS inventory_forms (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		form_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		version INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS inventory_form_lines (
		form_id TEXT NOT NULL REFERENCES inventory_forms(id),
		position INT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INT NOT NULL,
		PRIMARY KEY (form_id, position)
	);
`

// Dialect is the Postgres flavour of the SQL store.
var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Numbered:          true,
	IsUniqueViolation: isUniqueViolation,
	Schema:            schema,
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// InitDB connects to Postgres, applies the schema and returns the store.
func InitDB(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := sqlstore.New(db, Dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("Database connected and migrated", "driver", Dialect.Name)
	return store, nil
}
