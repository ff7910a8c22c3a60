package service

import (
	"context"
	"fmt"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository"
)

// StockLedger guards product quantity and sold counters. Every mutation is a
// single conditional update in the repository, so a commit can never drive
// quantity below zero even when availability checks race.
type StockLedger struct {
	products repository.ProductRepository
}

func NewStockLedger(products repository.ProductRepository) *StockLedger {
	return &StockLedger{products: products}
}

// Inspect loads the product and reports whether qty units are available.
func (l *StockLedger) Inspect(ctx context.Context, productID, domain string, qty int) (*entity.Product, bool, error) {
	if qty <= 0 {
		return nil, false, fmt.Errorf("%w: quantity must be positive", entity.ErrInvalidArgument)
	}
	p, err := l.products.Get(ctx, productID, domain)
	if err != nil {
		return nil, false, err
	}
	return p, p.Quantity >= qty, nil
}

// CheckAvailability is an advisory read. Commit re-validates.
func (l *StockLedger) CheckAvailability(ctx context.Context, productID, domain string, qty int) (bool, int, error) {
	p, ok, err := l.Inspect(ctx, productID, domain, qty)
	if err != nil {
		return false, 0, err
	}
	return ok, p.Quantity, nil
}

// Commit takes qty units out of stock and adds them to sold.
func (l *StockLedger) Commit(ctx context.Context, productID string, qty int) (*entity.Product, error) {
	p, err := l.products.Adjust(ctx, productID, -qty, qty)
	if err != nil {
		return nil, fmt.Errorf("failed to commit stock for %s: %w", productID, err)
	}
	return p, nil
}

// Uncommit reverses a Commit that belongs to an order that never completed
// creation.
func (l *StockLedger) Uncommit(ctx context.Context, productID string, qty int) error {
	if _, err := l.products.Adjust(ctx, productID, qty, -qty); err != nil {
		return fmt.Errorf("failed to uncommit stock for %s: %w", productID, err)
	}
	return nil
}

// Restore returns qty units to stock. Sold is a lifetime counter and is left
// untouched.
func (l *StockLedger) Restore(ctx context.Context, productID string, qty int) error {
	if _, err := l.products.Adjust(ctx, productID, qty, 0); err != nil {
		return fmt.Errorf("failed to restore stock for %s: %w", productID, err)
	}
	return nil
}

// ApplyBatch applies signed deltas all-or-nothing.
func (l *StockLedger) ApplyBatch(ctx context.Context, domain string, deltas []entity.StockDelta) error {
	if err := l.products.AdjustBatch(ctx, domain, deltas); err != nil {
		return fmt.Errorf("failed to apply stock batch: %w", err)
	}
	return nil
}
