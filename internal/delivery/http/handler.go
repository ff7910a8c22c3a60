package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/service"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*service.CreateOrderResult, error)
	CancelOrder(ctx context.Context, p entity.Principal, orderID, note string) (*entity.Order, error)
	UpdateStage(ctx context.Context, p entity.Principal, orderID string, stage string) (*entity.Order, error)
	GetOrder(ctx context.Context, p entity.Principal, orderID string) (*entity.Order, error)
	ListOrdersForUser(ctx context.Context, p entity.Principal, stage string) ([]entity.Order, error)
	ListOrdersForTenant(ctx context.Context, p entity.Principal, stage string) ([]entity.Order, error)
	GetOrdersReportForUsers(ctx context.Context, p entity.Principal, emails []string) ([]entity.UserOrderCount, error)
}

type ReportService interface {
	GetOrderValueReport(ctx context.Context, p entity.Principal, bucketType string) (*entity.OrderValueReport, error)
}

type VoucherService interface {
	FindByCode(ctx context.Context, p entity.Principal, code string) (*entity.Voucher, error)
	ListActive(ctx context.Context, p entity.Principal) ([]entity.Voucher, error)
}

type InventoryService interface {
	CreateForm(ctx context.Context, p entity.Principal, formType entity.InventoryFormType, description string, lines []entity.InventoryLine) (*entity.InventoryForm, error)
	ListForms(ctx context.Context, p entity.Principal, formType entity.InventoryFormType) ([]entity.InventoryForm, error)
	UpdateForm(ctx context.Context, p entity.Principal, id, description string, lines []entity.InventoryLine) (*entity.InventoryForm, error)
	DeleteForm(ctx context.Context, p entity.Principal, id string) error
	Adjust(ctx context.Context, p entity.Principal, deltas []entity.StockDelta) error
}

// Handler handles HTTP requests for the storefront.
type Handler struct {
	orders    OrderService
	reports   ReportService
	vouchers  VoucherService
	inventory InventoryService
}

func NewHandler(orders OrderService, reports ReportService, vouchers VoucherService, inventory InventoryService) *Handler {
	return &Handler{
		orders:    orders,
		reports:   reports,
		vouchers:  vouchers,
		inventory: inventory,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.handleCreateOrder)
	r.Get("/orders", h.handleListOrders)
	r.Get("/orders/{id}", h.handleGetOrder)
	r.Post("/orders/{id}/cancel", h.handleCancelOrder)
	r.Patch("/orders/{id}/stage", h.handleUpdateStage)

	r.Get("/tenant/orders", h.handleListTenantOrders)
	r.Get("/tenant/reports/order-value", h.handleOrderValueReport)
	r.Post("/tenant/reports/users", h.handleUsersReport)

	r.Get("/vouchers", h.handleListVouchers)
	r.Get("/vouchers/code/{code}", h.handleFindVoucher)

	r.Post("/inventory/forms", h.handleCreateForm)
	r.Get("/inventory/forms", h.handleListForms)
	r.Put("/inventory/forms/{id}", h.handleUpdateForm)
	r.Delete("/inventory/forms/{id}", h.handleDeleteForm)
	r.Post("/inventory/adjust", h.handleAdjustStock)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CreateOrderInput
	if !decode(w, r, &req) {
		return
	}
	req.Principal = principal(r)

	res, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrdersForUser(r.Context(), principal(r), r.URL.Query().Get("stage"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	order, err := h.orders.CancelOrder(r.Context(), principal(r), chi.URLParam(r, "id"), req.NoteCancel)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleUpdateStage(w http.ResponseWriter, r *http.Request) {
	var req UpdateStageRequest
	if !decode(w, r, &req) {
		return
	}
	order, err := h.orders.UpdateStage(r.Context(), principal(r), chi.URLParam(r, "id"), req.Stage)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleListTenantOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrdersForTenant(r.Context(), principal(r), r.URL.Query().Get("stage"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) handleOrderValueReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.GetOrderValueReport(r.Context(), principal(r), r.URL.Query().Get("type"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleUsersReport(w http.ResponseWriter, r *http.Request) {
	var req UsersReportRequest
	if !decode(w, r, &req) {
		return
	}
	counts, err := h.orders.GetOrdersReportForUsers(r.Context(), principal(r), req.Emails)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UsersReportResponse{ReportOrders: counts})
}

func (h *Handler) handleListVouchers(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.vouchers.ListActive(r.Context(), principal(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vouchers)
}

func (h *Handler) handleFindVoucher(w http.ResponseWriter, r *http.Request) {
	v, err := h.vouchers.FindByCode(r.Context(), principal(r), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	var req CreateFormRequest
	if !decode(w, r, &req) {
		return
	}
	form, err := h.inventory.CreateForm(r.Context(), principal(r), req.Type, req.Description, req.Products)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, form)
}

func (h *Handler) handleListForms(w http.ResponseWriter, r *http.Request) {
	forms, err := h.inventory.ListForms(r.Context(), principal(r), entity.InventoryFormType(r.URL.Query().Get("type")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forms)
}

func (h *Handler) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	var req UpdateFormRequest
	if !decode(w, r, &req) {
		return
	}
	form, err := h.inventory.UpdateForm(r.Context(), principal(r), chi.URLParam(r, "id"), req.Description, req.Products)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *Handler) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.DeleteForm(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req AdjustStockRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.inventory.Adjust(r.Context(), principal(r), req.Deltas); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
