package repository

import (
	"context"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
)

// ProductRepository handles persistence for Products and their stock counters.
type ProductRepository interface {
	Get(ctx context.Context, id, domain string) (*entity.Product, error)
	Create(ctx context.Context, p *entity.Product) error
	// Adjust applies quantity += quantityDelta and sold += soldDelta in one
	// conditional statement. It fails with entity.ErrInsufficientStock when
	// the result would be negative.
	Adjust(ctx context.Context, id string, quantityDelta, soldDelta int) (*entity.Product, error)
	// AdjustBatch applies every delta in a single transaction, or none.
	AdjustBatch(ctx context.Context, domain string, deltas []entity.StockDelta) error
	// Seed inserts products, skipping ids that already exist.
	Seed(ctx context.Context, products []entity.Product) error
}

// VoucherRepository handles persistence for Vouchers.
type VoucherRepository interface {
	// Find returns a voucher that is not soft-deleted.
	Find(ctx context.Context, id, domain string) (*entity.Voucher, error)
	FindByCode(ctx context.Context, code, domain string) (*entity.Voucher, error)
	ListByDomain(ctx context.Context, domain string) ([]entity.Voucher, error)
	Create(ctx context.Context, v *entity.Voucher) error
}

// OrderRepository handles persistence for Orders.
type OrderRepository interface {
	Create(ctx context.Context, o *entity.Order) error
	Get(ctx context.Context, id, domain string) (*entity.Order, error)
	// UpdateStage moves the order from one stage to another only if it is
	// still in the expected stage. It returns entity.ErrNotFound when no row
	// matched, in which case the caller re-reads to learn why.
	UpdateStage(ctx context.Context, id, domain string, from, to entity.Stage, note string) (*entity.Order, error)
	// MarkStockCommitted flags the order's stock as taken unless the order
	// has been cancelled meanwhile, in which case it returns
	// entity.ErrAlreadyCancelled.
	MarkStockCommitted(ctx context.Context, id string) error
	List(ctx context.Context, filter entity.OrderFilter) ([]entity.Order, error)
	CountCompletedByUsers(ctx context.Context, domain string, emails []string) ([]entity.UserOrderCount, error)
}

// InventoryFormRepository handles persistence for inventory forms. Create and
// Update apply the stock deltas in the same transaction as the form write.
type InventoryFormRepository interface {
	Create(ctx context.Context, form *entity.InventoryForm) error
	Get(ctx context.Context, id string) (*entity.InventoryForm, error)
	List(ctx context.Context, domain string, formType entity.InventoryFormType) ([]entity.InventoryForm, error)
	// Update fails with entity.ErrConflict when the stored version is no
	// longer form.Version.
	Update(ctx context.Context, form *entity.InventoryForm, deltas []entity.StockDelta) error
	Delete(ctx context.Context, id string) error
}
