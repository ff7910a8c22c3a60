package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository"
)

var hundred = decimal.NewFromInt(100)

// VoucherApplier validates vouchers and prices orders with them.
type VoucherApplier struct {
	vouchers repository.VoucherRepository
	now      func() time.Time
}

// NewVoucherApplier creates an applier. A nil clock means time.Now.
func NewVoucherApplier(vouchers repository.VoucherRepository, now func() time.Time) *VoucherApplier {
	if now == nil {
		now = time.Now
	}
	return &VoucherApplier{vouchers: vouchers, now: now}
}

// Apply validates the voucher against subtotal and returns the discount and
// the price after it.
func (a *VoucherApplier) Apply(ctx context.Context, voucherID, domain string, subtotal decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	v, err := a.vouchers.Find(ctx, voucherID, domain)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("voucher %s: %w", voucherID, err)
	}
	if err := a.checkWindow(v); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if subtotal.LessThan(v.MinAppValue) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: need %s, got %s", entity.ErrVoucherMinValueNotMet, v.MinAppValue, subtotal)
	}
	discount, final := Discount(v, subtotal)
	return discount, final, nil
}

func (a *VoucherApplier) checkWindow(v *entity.Voucher) error {
	now := a.now()
	if now.After(v.ExpireAt) {
		return fmt.Errorf("voucher %s: %w", v.Code, entity.ErrVoucherExpired)
	}
	if now.Before(v.StartAt) {
		return fmt.Errorf("voucher %s: %w", v.Code, entity.ErrVoucherNotStarted)
	}
	return nil
}

// Discount computes min(subtotal*percent/100, maxDiscount) and the price
// after it, floored at zero.
func Discount(v *entity.Voucher, subtotal decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	discount := subtotal.Mul(v.DiscountPercent).Div(hundred).Round(2)
	if discount.GreaterThan(v.MaxDiscount) {
		discount = v.MaxDiscount
	}
	final := subtotal.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return discount, final
}

// FindByCode returns the voucher with the given code if it is usable now.
func (a *VoucherApplier) FindByCode(ctx context.Context, p entity.Principal, code string) (*entity.Voucher, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: voucher code is required", entity.ErrInvalidArgument)
	}
	v, err := a.vouchers.FindByCode(ctx, code, p.Domain)
	if err != nil {
		return nil, err
	}
	if err := a.checkWindow(v); err != nil {
		return nil, err
	}
	return v, nil
}

// ListActive returns the vouchers of the domain that are usable now.
func (a *VoucherApplier) ListActive(ctx context.Context, p entity.Principal) ([]entity.Voucher, error) {
	all, err := a.vouchers.ListByDomain(ctx, p.Domain)
	if err != nil {
		return nil, err
	}
	active := make([]entity.Voucher, 0, len(all))
	for i := range all {
		if a.checkWindow(&all[i]) == nil {
			active = append(active, all[i])
		}
	}
	return active, nil
}
