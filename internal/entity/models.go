package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product sold by a tenant.
type Product struct {
	ID          string          `json:"id"`
	Domain      string          `json:"domain"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"` // available stock, never negative
	Sold        int             `json:"sold"`     // lifetime counter
}

// Voucher is a percentage discount with a validity window and value constraints.
type Voucher struct {
	ID              string          `json:"id"`
	Domain          string          `json:"domain"`
	Name            string          `json:"voucher_name"`
	Code            string          `json:"voucher_code"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	MaxDiscount     decimal.Decimal `json:"max_discount"`
	MinAppValue     decimal.Decimal `json:"min_app_value"`
	StartAt         time.Time       `json:"start_at"`
	ExpireAt        time.Time       `json:"expire_at"`
	DeletedAt       *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// OrderItem is a line item within an order. UnitPrice is captured when the
// order is created.
type OrderItem struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

// Subtotal returns UnitPrice * Quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order represents a customer order.
type Order struct {
	ID                string          `json:"id"`
	Domain            string          `json:"domain"`
	UserEmail         string          `json:"user"`
	Stage             Stage           `json:"stage"`
	Items             []OrderItem     `json:"items"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	VoucherID         string          `json:"voucher_id,omitempty"`
	VoucherDiscount   decimal.Decimal `json:"voucher_discount"`
	PriceAfterVoucher decimal.Decimal `json:"price_after_voucher"`
	Phone             string          `json:"phone"`
	Address           string          `json:"address"`
	PaymentMethod     string          `json:"payment_method"`
	NoteCancel        string          `json:"note_cancel,omitempty"`
	StockCommitted    bool            `json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// OrderFilter narrows OrderRepository.List. Empty fields match everything.
type OrderFilter struct {
	Domain    string
	UserEmail string
	Stage     Stage
}

// UserOrderCount is one row of the per-customer completed-orders report.
type UserOrderCount struct {
	Email      string `json:"email"`
	TotalOrder int    `json:"total_order"`
}

// StockDelta is a signed quantity adjustment for one product.
type StockDelta struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// InventoryFormType tells whether a form adds stock or takes it out.
type InventoryFormType string

const (
	InventoryImport InventoryFormType = "import"
	InventoryExport InventoryFormType = "export"
)

// Valid reports whether t is a known form type.
func (t InventoryFormType) Valid() bool {
	return t == InventoryImport || t == InventoryExport
}

// Sign returns +1 for imports and -1 for exports.
func (t InventoryFormType) Sign() int {
	if t == InventoryExport {
		return -1
	}
	return 1
}

// InventoryLine is one product line of an inventory form. Quantity is always
// positive; the form type decides the direction.
type InventoryLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// InventoryForm records a manual stock import or export.
type InventoryForm struct {
	ID          string            `json:"id"`
	Domain      string            `json:"domain"`
	Type        InventoryFormType `json:"type"`
	Description string            `json:"description"`
	Lines       []InventoryLine   `json:"products"`
	Version     int               `json:"version"` // bumped by every update
	CreatedAt   time.Time         `json:"created_at"`
}

// Deltas converts the form lines into signed stock deltas.
func (f *InventoryForm) Deltas() []StockDelta {
	deltas := make([]StockDelta, 0, len(f.Lines))
	for _, l := range f.Lines {
		deltas = append(deltas, StockDelta{ProductID: l.ProductID, Quantity: f.Type.Sign() * l.Quantity})
	}
	return deltas
}

// ReportBucket aggregates completed orders falling into one label.
type ReportBucket struct {
	Label      string          `json:"type"`
	OrderCount int             `json:"total_order"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// OrderValueReport is the result of a time-bucketed sales report.
type OrderValueReport struct {
	Buckets     []ReportBucket  `json:"report"`
	TotalOrders int             `json:"total"`
	TotalValue  decimal.Decimal `json:"value"`
}
