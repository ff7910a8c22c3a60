package http

import "github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"

type CancelOrderRequest struct {
	NoteCancel string `json:"note_cancel"`
}

type UpdateStageRequest struct {
	Stage string `json:"stage"`
}

type UsersReportRequest struct {
	Emails []string `json:"emails"`
}

type UsersReportResponse struct {
	ReportOrders []entity.UserOrderCount `json:"report_orders"`
}

type CreateFormRequest struct {
	Type        entity.InventoryFormType `json:"type"`
	Description string                   `json:"description"`
	Products    []entity.InventoryLine   `json:"products"`
}

type UpdateFormRequest struct {
	Description string                 `json:"description"`
	Products    []entity.InventoryLine `json:"products"`
}

type AdjustStockRequest struct {
	Deltas []entity.StockDelta `json:"deltas"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	// OrderID is set when the order was persisted before the failure.
	OrderID string `json:"order_id,omitempty"`
}
