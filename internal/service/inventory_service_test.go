package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/metrics"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/service"
)

type inventoryEnv struct {
	*testEnv
	inventory *service.InventoryService
}

func newInventoryEnv(t *testing.T) *inventoryEnv {
	env := newTestEnv(t)
	env.metrics = metrics.NewOrderMetrics(prometheus.NewRegistry())
	inv := service.NewInventoryService(
		env.store.InventoryForms(),
		service.NewStockLedger(env.store.Products()),
		env.events,
		env.metrics,
		func() time.Time { return fixedNow },
	)
	return &inventoryEnv{testEnv: env, inventory: inv}
}

func TestInventoryFormLifecycleMovesStock(t *testing.T) {
	env := newInventoryEnv(t)
	env.seedProduct(t, "p1", 5, "10")
	env.seedProduct(t, "p2", 5, "10")
	ctx := context.Background()

	form, err := env.inventory.CreateForm(ctx, tenant, entity.InventoryImport, "restock", []entity.InventoryLine{
		{ProductID: "p1", Quantity: 10},
		{ProductID: "p2", Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 15, env.product(t, "p1").Quantity)
	assert.Equal(t, 8, env.product(t, "p2").Quantity)

	// p1 10 -> 4, p2 dropped from the form.
	updated, err := env.inventory.UpdateForm(ctx, tenant, form.ID, "restock, corrected", []entity.InventoryLine{
		{ProductID: "p1", Quantity: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, "restock, corrected", updated.Description)
	assert.Equal(t, 9, env.product(t, "p1").Quantity)
	assert.Equal(t, 5, env.product(t, "p2").Quantity)

	stored, err := env.store.InventoryForms().Get(ctx, form.ID)
	require.NoError(t, err)
	assert.Equal(t, []entity.InventoryLine{{ProductID: "p1", Quantity: 4}}, stored.Lines)

	forms, err := env.inventory.ListForms(ctx, tenant, entity.InventoryImport)
	require.NoError(t, err)
	assert.Len(t, forms, 1)
	forms, err = env.inventory.ListForms(ctx, tenant, entity.InventoryExport)
	require.NoError(t, err)
	assert.Empty(t, forms)

	require.NoError(t, env.inventory.DeleteForm(ctx, tenant, form.ID))
	assert.Equal(t, 9, env.product(t, "p1").Quantity, "deleting a form keeps its stock")
	_, err = env.store.InventoryForms().Get(ctx, form.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	assert.Equal(t, []string{entity.TopicInventoryAdjusted, entity.TopicInventoryAdjusted}, env.events.topics())
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.StockAdjusted.WithLabelValues("import")))
}

func TestInventoryConcurrentUpdatesMoveStockOnce(t *testing.T) {
	env := newInventoryEnv(t)
	env.seedProduct(t, "p1", 5, "10")
	ctx := context.Background()

	form, err := env.inventory.CreateForm(ctx, tenant, entity.InventoryImport, "restock", []entity.InventoryLine{
		{ProductID: "p1", Quantity: 5},
	})
	require.NoError(t, err)
	require.Equal(t, 10, env.product(t, "p1").Quantity)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := env.inventory.UpdateForm(ctx, tenant, form.ID, "restock", []entity.InventoryLine{
				{ProductID: "p1", Quantity: 10},
			})
			if errors.Is(err, entity.ErrConflict) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	stored, err := env.store.InventoryForms().Get(ctx, form.ID)
	require.NoError(t, err)
	assert.Equal(t, []entity.InventoryLine{{ProductID: "p1", Quantity: 10}}, stored.Lines)
	assert.Equal(t, 15, env.product(t, "p1").Quantity, "stock must match the quantity the form records")
}

func TestInventoryExportCannotOversell(t *testing.T) {
	env := newInventoryEnv(t)
	env.seedProduct(t, "p1", 5, "10")
	env.seedProduct(t, "p2", 1, "10")
	ctx := context.Background()

	_, err := env.inventory.CreateForm(ctx, tenant, entity.InventoryExport, "damaged", []entity.InventoryLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 2},
	})
	require.ErrorIs(t, err, entity.ErrInsufficientStock)
	assert.Equal(t, 5, env.product(t, "p1").Quantity)
	assert.Equal(t, 1, env.product(t, "p2").Quantity)

	form, err := env.inventory.CreateForm(ctx, tenant, entity.InventoryExport, "damaged", []entity.InventoryLine{
		{ProductID: "p1", Quantity: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, env.product(t, "p1").Quantity)

	// Raising an export takes more stock out.
	_, err = env.inventory.UpdateForm(ctx, tenant, form.ID, "", []entity.InventoryLine{{ProductID: "p1", Quantity: 6}})
	require.ErrorIs(t, err, entity.ErrInsufficientStock)
	assert.Equal(t, 3, env.product(t, "p1").Quantity)

	_, err = env.inventory.UpdateForm(ctx, tenant, form.ID, "", []entity.InventoryLine{{ProductID: "p1", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, 4, env.product(t, "p1").Quantity)
}

func TestInventoryAccessAndValidation(t *testing.T) {
	env := newInventoryEnv(t)
	env.seedProduct(t, "p1", 5, "10")
	ctx := context.Background()
	lines := []entity.InventoryLine{{ProductID: "p1", Quantity: 1}}

	_, err := env.inventory.CreateForm(ctx, customer, entity.InventoryImport, "", lines)
	assert.ErrorIs(t, err, entity.ErrPermissionDenied)
	_, err = env.inventory.CreateForm(ctx, tenant, "transfer", "", lines)
	assert.ErrorIs(t, err, entity.ErrInvalidArgument)
	_, err = env.inventory.CreateForm(ctx, tenant, entity.InventoryImport, "", nil)
	assert.ErrorIs(t, err, entity.ErrInvalidArgument)
	_, err = env.inventory.CreateForm(ctx, tenant, entity.InventoryImport, "", []entity.InventoryLine{{ProductID: "p1", Quantity: 0}})
	assert.ErrorIs(t, err, entity.ErrInvalidArgument)
	_, err = env.inventory.ListForms(ctx, tenant, "transfer")
	assert.ErrorIs(t, err, entity.ErrInvalidArgument)

	form, err := env.inventory.CreateForm(ctx, tenant, entity.InventoryImport, "", lines)
	require.NoError(t, err)

	otherTenant := entity.Principal{Email: "owner@other.test", Domain: "other.test", Role: entity.RoleTenant}
	_, err = env.inventory.UpdateForm(ctx, otherTenant, form.ID, "", lines)
	assert.ErrorIs(t, err, entity.ErrPermissionDenied)
	assert.ErrorIs(t, env.inventory.DeleteForm(ctx, otherTenant, form.ID), entity.ErrPermissionDenied)
	assert.ErrorIs(t, env.inventory.DeleteForm(ctx, tenant, "missing"), entity.ErrNotFound)
}

func TestInventoryAdjust(t *testing.T) {
	env := newInventoryEnv(t)
	env.seedProduct(t, "p1", 5, "10")
	env.seedProduct(t, "p2", 5, "10")
	ctx := context.Background()

	require.NoError(t, env.inventory.Adjust(ctx, tenant, []entity.StockDelta{
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p2", Quantity: -5},
	}))
	assert.Equal(t, 8, env.product(t, "p1").Quantity)
	assert.Equal(t, 0, env.product(t, "p2").Quantity)

	err := env.inventory.Adjust(ctx, tenant, []entity.StockDelta{
		{ProductID: "p1", Quantity: -1},
		{ProductID: "p2", Quantity: -1},
	})
	assert.ErrorIs(t, err, entity.ErrInsufficientStock)
	assert.Equal(t, 8, env.product(t, "p1").Quantity)

	assert.ErrorIs(t, env.inventory.Adjust(ctx, customer, []entity.StockDelta{{ProductID: "p1", Quantity: 1}}), entity.ErrPermissionDenied)
	assert.ErrorIs(t, env.inventory.Adjust(ctx, tenant, nil), entity.ErrInvalidArgument)
	assert.ErrorIs(t, env.inventory.Adjust(ctx, tenant, []entity.StockDelta{{ProductID: "p1"}}), entity.ErrInvalidArgument)

	assert.Equal(t, []string{entity.TopicInventoryAdjusted}, env.events.topics())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.StockAdjusted.WithLabelValues("manual")))
}
