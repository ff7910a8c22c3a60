// Package sqlstore implements the repositories on database/sql. The SQL is
// written with '?' placeholders and rebound per dialect, so the same code
// runs on Postgres and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository"
)

// Dialect describes the driver-specific parts of a database.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool
	// IsUniqueViolation reports whether err is a unique-constraint failure.
	IsUniqueViolation func(err error) bool
	// Schema is executed by Migrate.
	Schema string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the connection pool and hands out repositories.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Schema); err != nil {
		return fmt.Errorf("failed to migrate %s schema: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *Store) Products() repository.ProductRepository { return &productRepository{s: s} }

func (s *Store) Vouchers() repository.VoucherRepository { return &voucherRepository{s: s} }

func (s *Store) Orders() repository.OrderRepository { return &orderRepository{s: s} }

func (s *Store) InventoryForms() repository.InventoryFormRepository {
	return &inventoryFormRepository{s: s}
}

// rebind rewrites '?' placeholders for dialects that number them.
func (s *Store) rebind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// translate maps storage errors to entity error kinds.
func (s *Store) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return entity.ErrNotFound
	case s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", entity.ErrAlreadyExists, err)
	}
	return err
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
