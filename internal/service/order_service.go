package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/metrics"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/notification"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/payment"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/profile"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/saga"
)

const tracerName = "storefront/service"

// stockUnavailableNote is stored on orders cancelled by the system because a
// stock commit lost a race.
const stockUnavailableNote = "cancelled automatically: stock no longer available"

// Dispatcher is the fire-and-forget side of the order lifecycle.
type Dispatcher interface {
	Enqueue(ctx context.Context, key string, event entity.Event)
	SendEmail(ctx context.Context, to []notification.Recipient, templateID int64, params any)
}

// OrderConfig holds the tunables of OrderService.
type OrderConfig struct {
	PaymentTimeout   time.Duration
	ProfileTimeout   time.Duration
	CancelTemplateID int64
	// Storefront links rendered in the cancellation email.
	StorefrontURL       string
	StorefrontMobileURL string
}

// OrderDeps are the collaborators of OrderService. Metrics and Now may be nil.
type OrderDeps struct {
	Orders   repository.OrderRepository
	Ledger   *StockLedger
	Vouchers *VoucherApplier
	Payment  payment.Gateway
	Users    profile.UserLookup
	Tenants  profile.TenantLookup
	Events   Dispatcher
	Metrics  *metrics.OrderMetrics
	Now      func() time.Time
}

// OrderService orchestrates the order lifecycle.
type OrderService struct {
	orders   repository.OrderRepository
	ledger   *StockLedger
	vouchers *VoucherApplier
	payment  payment.Gateway
	users    profile.UserLookup
	tenants  profile.TenantLookup
	events   Dispatcher
	metrics  *metrics.OrderMetrics
	cfg      OrderConfig
	now      func() time.Time
	tracer   trace.Tracer
}

func NewOrderService(deps OrderDeps, cfg OrderConfig) *OrderService {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewOrderMetrics(prometheus.NewRegistry())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 10 * time.Second
	}
	if cfg.ProfileTimeout <= 0 {
		cfg.ProfileTimeout = 3 * time.Second
	}
	return &OrderService{
		orders:   deps.Orders,
		ledger:   deps.Ledger,
		vouchers: deps.Vouchers,
		payment:  deps.Payment,
		users:    deps.Users,
		tenants:  deps.Tenants,
		events:   deps.Events,
		metrics:  deps.Metrics,
		cfg:      cfg,
		now:      deps.Now,
		tracer:   otel.Tracer(tracerName),
	}
}

// OrderLine is one requested product line.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderInput is what a customer submits at checkout.
type CreateOrderInput struct {
	Principal     entity.Principal `json:"-"`
	Items         []OrderLine      `json:"items"`
	VoucherID     string           `json:"voucher_id,omitempty"`
	PaymentMethod string           `json:"payment_method"`
	Phone         string           `json:"phone"`
	Address       string           `json:"address"`
	ReturnURL     string           `json:"payment_return_url"`
}

type CreateOrderResult struct {
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
}

func (in *CreateOrderInput) validate() error {
	if in.Principal.Email == "" || in.Principal.Domain == "" {
		return fmt.Errorf("%w: principal email and domain are required", entity.ErrInvalidArgument)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: order must have at least one item", entity.ErrInvalidArgument)
	}
	seen := make(map[string]struct{}, len(in.Items))
	for _, it := range in.Items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: product id is required", entity.ErrInvalidArgument)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: quantity of %s must be positive", entity.ErrInvalidArgument, it.ProductID)
		}
		if _, dup := seen[it.ProductID]; dup {
			return fmt.Errorf("%w: duplicate line for product %s", entity.ErrInvalidArgument, it.ProductID)
		}
		seen[it.ProductID] = struct{}{}
	}
	return nil
}

// CreateOrder prices and persists an order, obtains a payment URL and then
// commits stock for every line.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, s.fail(span, "invalid", err)
	}
	p := in.Principal
	span.SetAttributes(attribute.String("domain", p.Domain), attribute.Int("items", len(in.Items)))

	items := make([]entity.OrderItem, 0, len(in.Items))
	subtotal := decimal.Zero
	for _, line := range in.Items {
		prod, ok, err := s.ledger.Inspect(ctx, line.ProductID, p.Domain, line.Quantity)
		if err != nil {
			return nil, s.fail(span, "lookup", fmt.Errorf("product %s: %w", line.ProductID, err))
		}
		if !ok {
			return nil, s.fail(span, "out_of_stock", fmt.Errorf("%w: %s (%s) has %d, requested %d",
				entity.ErrOutOfStock, prod.Name, prod.ID, prod.Quantity, line.Quantity))
		}
		item := entity.OrderItem{
			ProductID:   prod.ID,
			Name:        prod.Name,
			Description: prod.Description,
			UnitPrice:   prod.Price,
			Quantity:    line.Quantity,
		}
		if len(prod.Images) > 0 {
			item.Image = prod.Images[0]
		}
		items = append(items, item)
		subtotal = subtotal.Add(item.Subtotal())
	}

	discount, final := decimal.Zero, subtotal
	if in.VoucherID != "" {
		var err error
		if discount, final, err = s.vouchers.Apply(ctx, in.VoucherID, p.Domain, subtotal); err != nil {
			return nil, s.fail(span, "voucher", err)
		}
	}

	now := s.now().UTC()
	order := &entity.Order{
		ID:                ulid.Make().String(),
		Domain:            p.Domain,
		UserEmail:         p.Email,
		Stage:             entity.StagePending,
		Items:             items,
		TotalPrice:        subtotal,
		VoucherID:         in.VoucherID,
		VoucherDiscount:   discount,
		PriceAfterVoucher: final,
		Phone:             in.Phone,
		Address:           in.Address,
		PaymentMethod:     in.PaymentMethod,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, s.fail(span, "persist", fmt.Errorf("failed to create order: %w", err))
	}
	span.SetAttributes(attribute.String("order_id", order.ID))
	slog.InfoContext(ctx, "Order created", "order_id", order.ID, "domain", order.Domain, "total", final.String())

	paymentURL, err := s.requestPayment(ctx, order, in)
	if err != nil {
		slog.WarnContext(ctx, "Payment URL unavailable, order left pending", "order_id", order.ID, "error", err)
		return nil, s.fail(span, "payment", &entity.PaymentPendingError{OrderID: order.ID, Err: err})
	}

	// The order may have been cancelled while the payment URL was issued.
	current, err := s.orders.Get(ctx, order.ID, order.Domain)
	if err != nil {
		return nil, s.fail(span, "persist", fmt.Errorf("failed to reload order: %w", err))
	}
	if current.Stage == entity.StageCancelled {
		return nil, s.fail(span, "cancelled", fmt.Errorf("%w: order %s was cancelled during checkout", entity.ErrAlreadyCancelled, order.ID))
	}

	if err := saga.Run(ctx, s.commitSteps(order)...); err != nil {
		if errors.Is(err, entity.ErrAlreadyCancelled) {
			return nil, s.fail(span, "cancelled", fmt.Errorf("order %s was cancelled during checkout: %w", order.ID, err))
		}
		if _, cerr := s.orders.UpdateStage(ctx, order.ID, order.Domain, entity.StagePending, entity.StageCancelled, stockUnavailableNote); cerr != nil {
			slog.ErrorContext(ctx, "Failed to cancel order after stock commit failure", "order_id", order.ID, "error", cerr)
		}
		return nil, s.fail(span, "commit", fmt.Errorf("failed to commit stock for order %s: %w", order.ID, err))
	}

	s.events.Enqueue(ctx, order.ID, entity.OrderCreated{
		OrderID:           order.ID,
		Domain:            order.Domain,
		UserEmail:         order.UserEmail,
		Items:             order.Items,
		PriceAfterVoucher: order.PriceAfterVoucher,
		CreatedAt:         order.CreatedAt,
	})
	s.metrics.Created.Inc()
	span.SetStatus(codes.Ok, "order created")

	return &CreateOrderResult{OrderID: order.ID, PaymentURL: paymentURL}, nil
}

func (s *OrderService) requestPayment(ctx context.Context, order *entity.Order, in CreateOrderInput) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	defer cancel()

	return s.payment.CreatePaymentURL(ctx, payment.Request{
		Amount:        order.PriceAfterVoucher,
		Description:   fmt.Sprintf("Payment for order %s", order.ID),
		OrderIDs:      []string{order.ID},
		PaymentMethod: in.PaymentMethod,
		ReturnURL:     in.ReturnURL,
		User:          in.Principal,
	})
}

// commitSteps takes the stock of every line and then flags the order as
// committed. The flag is refused for a cancelled order, which rolls the
// commits back.
func (s *OrderService) commitSteps(order *entity.Order) []saga.Step {
	steps := make([]saga.Step, 0, len(order.Items)+1)
	for _, item := range order.Items {
		steps = append(steps, saga.FuncStep{
			StepName: "commit " + item.ProductID,
			ExecuteFn: func(ctx context.Context) error {
				_, err := s.ledger.Commit(ctx, item.ProductID, item.Quantity)
				return err
			},
			CompensateFn: func(ctx context.Context) error {
				return s.ledger.Uncommit(ctx, item.ProductID, item.Quantity)
			},
		})
	}
	steps = append(steps, saga.FuncStep{
		StepName: "mark committed",
		ExecuteFn: func(ctx context.Context) error {
			return s.orders.MarkStockCommitted(ctx, order.ID)
		},
	})
	return steps
}

func (s *OrderService) fail(span trace.Span, reason string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	s.metrics.CreateFailures.WithLabelValues(reason).Inc()
	return err
}

// CancelOrder cancels a pending order and gives its stock back.
func (s *OrderService) CancelOrder(ctx context.Context, p entity.Principal, orderID, note string) (*entity.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CancelOrder", trace.WithAttributes(attribute.String("order_id", orderID)))
	defer span.End()

	order, err := s.orders.Get(ctx, orderID, p.Domain)
	if err != nil {
		return nil, err
	}
	switch {
	case p.Role == entity.RoleUser && order.UserEmail != p.Email:
		// Same as GetOrder: other customers' orders do not exist.
		return nil, entity.ErrNotFound
	case p.Role != entity.RoleUser && !p.IsTenant():
		return nil, entity.ErrPermissionDenied
	}
	if order.Stage == entity.StageCancelled {
		return nil, entity.ErrAlreadyCancelled
	}
	if order.Stage != entity.StagePending {
		return nil, fmt.Errorf("%w: order is %s", entity.ErrCannotCancel, order.Stage)
	}

	cancelled, err := s.transition(ctx, p, order, entity.StageCancelled, note)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return cancelled, nil
}

// UpdateStage moves an order along the stage table. Only tenants may do it.
func (s *OrderService) UpdateStage(ctx context.Context, p entity.Principal, orderID string, rawStage string) (*entity.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateStage", trace.WithAttributes(
		attribute.String("order_id", orderID),
		attribute.String("stage", rawStage),
	))
	defer span.End()

	next, err := entity.ParseStage(rawStage)
	if err != nil {
		return nil, err
	}
	if !p.IsTenant() {
		return nil, entity.ErrPermissionDenied
	}
	order, err := s.orders.Get(ctx, orderID, p.Domain)
	if err != nil {
		return nil, err
	}
	if err := order.Stage.CheckTransition(next); err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, p, order, next, "")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return updated, nil
}

// transition applies the stage change conditionally on the stage order was
// read in, then runs the side effects of the new stage.
func (s *OrderService) transition(ctx context.Context, p entity.Principal, order *entity.Order, next entity.Stage, note string) (*entity.Order, error) {
	updated, err := s.orders.UpdateStage(ctx, order.ID, order.Domain, order.Stage, next, note)
	if errors.Is(err, entity.ErrNotFound) {
		// Someone else moved the order first.
		current, gerr := s.orders.Get(ctx, order.ID, order.Domain)
		if gerr != nil {
			return nil, gerr
		}
		if next == entity.StageCancelled && current.Stage != entity.StageCancelled && current.Stage != entity.StagePending {
			return nil, fmt.Errorf("%w: order is %s", entity.ErrCannotCancel, current.Stage)
		}
		if err := current.Stage.CheckTransition(next); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: order %s changed concurrently", entity.ErrInvalidTransition, order.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order stage: %w", err)
	}

	now := s.now().UTC()
	s.metrics.StageChanges.WithLabelValues(string(order.Stage), string(next)).Inc()

	if next != entity.StageCancelled {
		s.events.Enqueue(ctx, updated.ID, entity.OrderStageChanged{
			OrderID:   updated.ID,
			Domain:    updated.Domain,
			From:      order.Stage,
			To:        next,
			ChangedAt: now,
		})
		slog.InfoContext(ctx, "Order stage changed", "order_id", updated.ID, "from", order.Stage, "to", next)
		return updated, nil
	}

	if updated.StockCommitted {
		if err := s.restoreStock(ctx, updated); err != nil {
			slog.ErrorContext(ctx, "Failed to restore stock of cancelled order", "order_id", updated.ID, "error", err)
		}
	}
	s.events.Enqueue(ctx, updated.ID, entity.OrderCancelled{
		OrderID:     updated.ID,
		Domain:      updated.Domain,
		UserEmail:   updated.UserEmail,
		CancelledBy: p.Email,
		NoteCancel:  updated.NoteCancel,
		CancelledAt: now,
	})
	s.metrics.Cancelled.WithLabelValues(string(p.Role)).Inc()
	slog.InfoContext(ctx, "Order cancelled", "order_id", updated.ID, "by", p.Email, "role", p.Role)

	if p.IsTenant() {
		s.sendCancellationEmail(ctx, updated)
	}
	return updated, nil
}

func (s *OrderService) restoreStock(ctx context.Context, order *entity.Order) error {
	var result *multierror.Error
	for _, item := range order.Items {
		if err := s.ledger.Restore(ctx, item.ProductID, item.Quantity); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// sendCancellationEmail looks up the customer's name and the tenant branding
// in parallel and hands the email to the dispatcher. Lookup failures fall
// back to defaults.
func (s *OrderService) sendCancellationEmail(ctx context.Context, order *entity.Order) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.ProfileTimeout)
	defer cancel()

	name := strings.SplitN(order.UserEmail, "@", 2)[0]
	tenant := &profile.TenantProfile{Domain: order.Domain, Name: order.Domain}

	var g errgroup.Group
	g.Go(func() error {
		u, err := s.users.GetUserProfile(lookupCtx, order.Domain, order.UserEmail)
		if err != nil {
			slog.WarnContext(ctx, "User profile lookup failed, using fallback name", "email", order.UserEmail, "error", err)
			return nil
		}
		if u.Name != "" {
			name = u.Name
		}
		return nil
	})
	g.Go(func() error {
		t, err := s.tenants.FindByDomain(lookupCtx, order.Domain)
		if err != nil {
			slog.WarnContext(ctx, "Tenant profile lookup failed, sending unbranded email", "domain", order.Domain, "error", err)
			return nil
		}
		tenant = t
		return nil
	})
	_ = g.Wait()

	items := make([]notification.EmailItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, notification.EmailItem{
			Name:          it.Name,
			Price:         it.UnitPrice,
			Img:           it.Image,
			QuantityOrder: it.Quantity,
			Description:   it.Description,
		})
	}

	s.events.SendEmail(ctx, []notification.Recipient{{Email: order.UserEmail, Name: name}}, s.cfg.CancelTemplateID, notification.CancellationParams{
		Email:                       order.UserEmail,
		Type:                        "Order",
		Name:                        name,
		Domain:                      order.Domain,
		ID:                          order.ID,
		Date:                        order.CreatedAt.UTC().Format(time.RFC3339),
		NoteCancel:                  order.NoteCancel,
		LogoLink:                    tenant.Logo,
		DescriptionTenant:           tenant.Description,
		TrackOrderLinkDesktop:       s.cfg.StorefrontURL + "/user-info/order",
		TrackOrderLinkMobile:        s.cfg.StorefrontMobileURL,
		ContinueShoppingLinkDesktop: s.cfg.StorefrontURL,
		ContinueShoppingLinkMobile:  s.cfg.StorefrontMobileURL,
		Items:                       items,
	})
}

// GetOrder returns one order of the principal's domain. Customers only see
// their own orders.
func (s *OrderService) GetOrder(ctx context.Context, p entity.Principal, orderID string) (*entity.Order, error) {
	order, err := s.orders.Get(ctx, orderID, p.Domain)
	if err != nil {
		return nil, err
	}
	if p.Role == entity.RoleUser && order.UserEmail != p.Email {
		// Hide the existence of other customers' orders.
		return nil, entity.ErrNotFound
	}
	return order, nil
}

// ListOrdersForUser returns the principal's own orders, newest first.
func (s *OrderService) ListOrdersForUser(ctx context.Context, p entity.Principal, stage string) ([]entity.Order, error) {
	filter := entity.OrderFilter{Domain: p.Domain, UserEmail: p.Email}
	if err := setStage(&filter, stage); err != nil {
		return nil, err
	}
	return s.orders.List(ctx, filter)
}

// ListOrdersForTenant returns every order of the tenant's domain.
func (s *OrderService) ListOrdersForTenant(ctx context.Context, p entity.Principal, stage string) ([]entity.Order, error) {
	if !p.IsTenant() {
		return nil, entity.ErrPermissionDenied
	}
	filter := entity.OrderFilter{Domain: p.Domain}
	if err := setStage(&filter, stage); err != nil {
		return nil, err
	}
	return s.orders.List(ctx, filter)
}

func setStage(f *entity.OrderFilter, raw string) error {
	if raw == "" {
		return nil
	}
	st, err := entity.ParseStage(raw)
	if err != nil {
		return err
	}
	f.Stage = st
	return nil
}

// GetOrdersReportForUsers counts completed orders per customer email.
func (s *OrderService) GetOrdersReportForUsers(ctx context.Context, p entity.Principal, emails []string) ([]entity.UserOrderCount, error) {
	if !p.IsTenant() {
		return nil, entity.ErrPermissionDenied
	}
	if p.Domain == "" {
		return nil, fmt.Errorf("%w: domain is required", entity.ErrInvalidArgument)
	}
	counts, err := s.orders.CountCompletedByUsers(ctx, p.Domain, emails)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	return counts, nil
}
