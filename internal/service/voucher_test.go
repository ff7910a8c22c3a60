package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/service"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDiscountClamp(t *testing.T) {
	tests := []struct {
		subtotal, percent, max string
		discount, final        string
	}{
		{"100000", "50", "30000", "30000", "70000"},
		{"100000", "10", "30000", "10000", "90000"},
		{"100000", "100", "1000000", "100000", "0"},
		{"0", "50", "100", "0", "0"},
		{"99.99", "15", "100", "15", "84.99"},
		{"250", "0", "100", "0", "250"},
		{"100", "30", "0", "0", "100"},
		{"80", "150", "1000", "120", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.subtotal+"@"+tt.percent+"%", func(t *testing.T) {
			v := &entity.Voucher{DiscountPercent: d(tt.percent), MaxDiscount: d(tt.max)}
			discount, final := service.Discount(v, d(tt.subtotal))
			assert.True(t, discount.Equal(d(tt.discount)), "discount %s", discount)
			assert.True(t, final.Equal(d(tt.final)), "final %s", final)
			assert.False(t, final.IsNegative())
		})
	}
}

func TestVoucherApplier(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	vouchers := []entity.Voucher{
		{ID: "live", Code: "LIVE", DiscountPercent: d("20"), MaxDiscount: d("50"), MinAppValue: d("100"),
			StartAt: fixedNow.Add(-time.Hour), ExpireAt: fixedNow.Add(time.Hour)},
		{ID: "expired", Code: "OLD", DiscountPercent: d("20"), MaxDiscount: d("50"), MinAppValue: d("0"),
			StartAt: fixedNow.AddDate(0, -1, 0), ExpireAt: fixedNow.Add(-time.Second)},
		{ID: "future", Code: "SOON", DiscountPercent: d("20"), MaxDiscount: d("50"), MinAppValue: d("0"),
			StartAt: fixedNow.Add(time.Hour), ExpireAt: fixedNow.AddDate(0, 1, 0)},
	}
	for i := range vouchers {
		vouchers[i].Domain = domain
		vouchers[i].Name = vouchers[i].Code
		vouchers[i].CreatedAt = fixedNow
		require.NoError(t, store.Vouchers().Create(ctx, &vouchers[i]))
	}
	applier := service.NewVoucherApplier(store.Vouchers(), func() time.Time { return fixedNow })

	discount, final, err := applier.Apply(ctx, "live", domain, d("150"))
	require.NoError(t, err)
	assert.True(t, discount.Equal(d("30")))
	assert.True(t, final.Equal(d("120")))

	_, _, err = applier.Apply(ctx, "live", domain, d("99.99"))
	assert.ErrorIs(t, err, entity.ErrVoucherMinValueNotMet)
	_, _, err = applier.Apply(ctx, "expired", domain, d("150"))
	assert.ErrorIs(t, err, entity.ErrVoucherExpired)
	_, _, err = applier.Apply(ctx, "future", domain, d("150"))
	assert.ErrorIs(t, err, entity.ErrVoucherNotStarted)
	_, _, err = applier.Apply(ctx, "live", "other.test", d("150"))
	assert.ErrorIs(t, err, entity.ErrNotFound)

	v, err := applier.FindByCode(ctx, customer, "LIVE")
	require.NoError(t, err)
	assert.Equal(t, "live", v.ID)
	_, err = applier.FindByCode(ctx, customer, "OLD")
	assert.ErrorIs(t, err, entity.ErrVoucherExpired)
	_, err = applier.FindByCode(ctx, customer, "")
	assert.ErrorIs(t, err, entity.ErrInvalidArgument)

	active, err := applier.ListActive(ctx, customer)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "LIVE", active[0].Code)
}

func TestStockLedger(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "p1", 4, "10")
	ledger := service.NewStockLedger(env.store.Products())
	ctx := context.Background()

	ok, current, err := ledger.CheckAvailability(ctx, "p1", domain, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, current)
	ok, _, err = ledger.CheckAvailability(ctx, "p1", domain, 5)
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, err = ledger.CheckAvailability(ctx, "p1", domain, 0)
	assert.ErrorIs(t, err, entity.ErrInvalidArgument)
	_, _, err = ledger.CheckAvailability(ctx, "nope", domain, 1)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	p, err := ledger.Commit(ctx, "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Quantity)
	assert.Equal(t, 3, p.Sold)

	_, err = ledger.Commit(ctx, "p1", 2)
	assert.ErrorIs(t, err, entity.ErrInsufficientStock)
	_, err = ledger.Commit(ctx, "nope", 1)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	require.NoError(t, ledger.Restore(ctx, "p1", 2))
	p = env.product(t, "p1")
	assert.Equal(t, 3, p.Quantity)
	assert.Equal(t, 3, p.Sold)

	require.NoError(t, ledger.Uncommit(ctx, "p1", 1))
	p = env.product(t, "p1")
	assert.Equal(t, 4, p.Quantity)
	assert.Equal(t, 2, p.Sold)
}
