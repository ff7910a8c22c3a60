package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/metrics"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository"
)

// InventoryService records stock imports and exports for tenants.
type InventoryService struct {
	forms   repository.InventoryFormRepository
	ledger  *StockLedger
	events  Dispatcher
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

func NewInventoryService(forms repository.InventoryFormRepository, ledger *StockLedger, events Dispatcher, m *metrics.OrderMetrics, now func() time.Time) *InventoryService {
	if m == nil {
		m = metrics.NewOrderMetrics(prometheus.NewRegistry())
	}
	if now == nil {
		now = time.Now
	}
	return &InventoryService{forms: forms, ledger: ledger, events: events, metrics: m, now: now}
}

func validateLines(lines []entity.InventoryLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: form must have at least one product", entity.ErrInvalidArgument)
	}
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity <= 0 {
			return fmt.Errorf("%w: every line needs a product and a positive quantity", entity.ErrInvalidArgument)
		}
		if _, dup := seen[l.ProductID]; dup {
			return fmt.Errorf("%w: duplicate line for product %s", entity.ErrInvalidArgument, l.ProductID)
		}
		seen[l.ProductID] = struct{}{}
	}
	return nil
}

// CreateForm stores the form and applies its stock change in one transaction.
func (s *InventoryService) CreateForm(ctx context.Context, p entity.Principal, formType entity.InventoryFormType, description string, lines []entity.InventoryLine) (*entity.InventoryForm, error) {
	if !p.IsTenant() {
		return nil, entity.ErrPermissionDenied
	}
	if !formType.Valid() {
		return nil, fmt.Errorf("%w: unknown form type %q", entity.ErrInvalidArgument, formType)
	}
	if err := validateLines(lines); err != nil {
		return nil, err
	}

	form := &entity.InventoryForm{
		ID:          uuid.NewString(),
		Domain:      p.Domain,
		Type:        formType,
		Description: description,
		Lines:       lines,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.forms.Create(ctx, form); err != nil {
		return nil, fmt.Errorf("failed to create inventory form: %w", err)
	}

	slog.InfoContext(ctx, "Inventory form created", "form_id", form.ID, "type", form.Type, "lines", len(lines))
	s.adjusted(ctx, form.ID, form.Domain, form.Type, form.Deltas())
	return form, nil
}

func (s *InventoryService) ListForms(ctx context.Context, p entity.Principal, formType entity.InventoryFormType) ([]entity.InventoryForm, error) {
	if !p.IsTenant() {
		return nil, entity.ErrPermissionDenied
	}
	if formType != "" && !formType.Valid() {
		return nil, fmt.Errorf("%w: unknown form type %q", entity.ErrInvalidArgument, formType)
	}
	return s.forms.List(ctx, p.Domain, formType)
}

// UpdateForm replaces the form's lines. Stock moves by the difference between
// the new and old quantities, in the direction of the form type.
func (s *InventoryService) UpdateForm(ctx context.Context, p entity.Principal, id, description string, lines []entity.InventoryLine) (*entity.InventoryForm, error) {
	form, err := s.ownedForm(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := validateLines(lines); err != nil {
		return nil, err
	}

	diff := make(map[string]int, len(lines)+len(form.Lines))
	order := make([]string, 0, len(lines)+len(form.Lines))
	add := func(productID string, qty int) {
		if _, ok := diff[productID]; !ok {
			order = append(order, productID)
		}
		diff[productID] += qty
	}
	for _, l := range form.Lines {
		add(l.ProductID, -l.Quantity)
	}
	for _, l := range lines {
		add(l.ProductID, l.Quantity)
	}

	deltas := make([]entity.StockDelta, 0, len(order))
	for _, id := range order {
		if diff[id] != 0 {
			deltas = append(deltas, entity.StockDelta{ProductID: id, Quantity: form.Type.Sign() * diff[id]})
		}
	}

	form.Description = description
	form.Lines = lines
	if err := s.forms.Update(ctx, form, deltas); err != nil {
		return nil, fmt.Errorf("failed to update inventory form: %w", err)
	}

	if len(deltas) > 0 {
		s.adjusted(ctx, form.ID, form.Domain, form.Type, deltas)
	}
	return form, nil
}

// DeleteForm removes the record only. Stock already moved stays moved.
func (s *InventoryService) DeleteForm(ctx context.Context, p entity.Principal, id string) error {
	if _, err := s.ownedForm(ctx, p, id); err != nil {
		return err
	}
	if err := s.forms.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete inventory form: %w", err)
	}
	slog.InfoContext(ctx, "Inventory form deleted", "form_id", id)
	return nil
}

// Adjust applies signed deltas without recording a form.
func (s *InventoryService) Adjust(ctx context.Context, p entity.Principal, deltas []entity.StockDelta) error {
	if !p.IsTenant() {
		return entity.ErrPermissionDenied
	}
	if len(deltas) == 0 {
		return fmt.Errorf("%w: no adjustments given", entity.ErrInvalidArgument)
	}
	for _, d := range deltas {
		if d.ProductID == "" || d.Quantity == 0 {
			return fmt.Errorf("%w: every adjustment needs a product and a non-zero quantity", entity.ErrInvalidArgument)
		}
	}
	if err := s.ledger.ApplyBatch(ctx, p.Domain, deltas); err != nil {
		return err
	}
	s.adjusted(ctx, "", p.Domain, "", deltas)
	return nil
}

func (s *InventoryService) ownedForm(ctx context.Context, p entity.Principal, id string) (*entity.InventoryForm, error) {
	if !p.IsTenant() {
		return nil, entity.ErrPermissionDenied
	}
	form, err := s.forms.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if form.Domain != p.Domain {
		return nil, entity.ErrPermissionDenied
	}
	return form, nil
}

func (s *InventoryService) adjusted(ctx context.Context, formID, domain string, formType entity.InventoryFormType, deltas []entity.StockDelta) {
	kind := string(formType)
	if kind == "" {
		kind = "manual"
	}
	s.metrics.StockAdjusted.WithLabelValues(kind).Inc()
	s.events.Enqueue(ctx, domain, entity.InventoryAdjusted{
		FormID:     formID,
		Domain:     domain,
		Type:       formType,
		Deltas:     deltas,
		AdjustedAt: s.now().UTC(),
	})
}
