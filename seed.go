package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository/sqlstore"
)

const demoDomain = "demo.storefront.local"

// seedDemo loads a small catalogue and one voucher for local runs. It is safe
// to call on every start.
func seedDemo(ctx context.Context, store *sqlstore.Store, now time.Time) error {
	products := []entity.Product{
		{ID: "prod-001", Domain: demoDomain, Name: "Wireless Noise-Cancelling Headphones", Description: "Premium over-ear headphones with active noise cancellation and 30-hour battery life.", Images: []string{"https://images.unsplash.com/photo-1505740420928-5e560c06d30e?w=400"}, Price: decimal.RequireFromString("349.99"), Quantity: 50},
		{ID: "prod-002", Domain: demoDomain, Name: "Mechanical Keyboard RGB", Description: "Cherry MX switches with per-key RGB lighting and aluminum frame.", Images: []string{"https://images.unsplash.com/photo-1618384887929-16ec33fab9ef?w=400"}, Price: decimal.RequireFromString("179.99"), Quantity: 120},
		{ID: "prod-003", Domain: demoDomain, Name: "Ergonomic Office Chair", Description: "Adjustable lumbar support, breathable mesh, and 4D armrests.", Images: []string{"https://images.unsplash.com/photo-1592078615290-033ee584e267?w=400"}, Price: decimal.RequireFromString("549.99"), Quantity: 25},
		{ID: "prod-004", Domain: demoDomain, Name: "Smart LED Desk Lamp", Description: "Adjustable color temperature, brightness levels, and USB charging port.", Images: []string{"https://images.unsplash.com/photo-1507473885765-e6ed057ab6fe?w=400"}, Price: decimal.RequireFromString("89.99"), Quantity: 200},
	}
	if err := store.Products().Seed(ctx, products); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}

	voucher := &entity.Voucher{
		ID:              "voucher-welcome",
		Domain:          demoDomain,
		Name:            "Welcome",
		Code:            "WELCOME10",
		DiscountPercent: decimal.NewFromInt(10),
		MaxDiscount:     decimal.NewFromInt(50),
		MinAppValue:     decimal.NewFromInt(100),
		StartAt:         now.AddDate(0, -1, 0),
		ExpireAt:        now.AddDate(1, 0, 0),
		CreatedAt:       now,
	}
	if err := store.Vouchers().Create(ctx, voucher); err != nil && !errors.Is(err, entity.ErrAlreadyExists) {
		return fmt.Errorf("failed to seed voucher: %w", err)
	}

	slog.Info("Seeded demo catalogue", "domain", demoDomain, "products", len(products))
	return nil
}
