package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}

// errorKinds maps service errors to a status and a stable code. Order
// matters: ErrOutOfStock wraps ErrInsufficientStock.
var errorKinds = []struct {
	err    error
	status int
	code   string
}{
	{entity.ErrNotFound, http.StatusNotFound, "not_found"},
	{entity.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{entity.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{entity.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
	{entity.ErrOutOfStock, http.StatusConflict, "out_of_stock"},
	{entity.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{entity.ErrVoucherExpired, http.StatusUnprocessableEntity, "voucher_expired"},
	{entity.ErrVoucherNotStarted, http.StatusUnprocessableEntity, "voucher_not_started"},
	{entity.ErrVoucherMinValueNotMet, http.StatusUnprocessableEntity, "voucher_min_value_not_met"},
	{entity.ErrAlreadyCancelled, http.StatusConflict, "already_cancelled"},
	{entity.ErrCannotCancel, http.StatusConflict, "cannot_cancel"},
	{entity.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{entity.ErrConflict, http.StatusConflict, "conflict"},
	{entity.ErrUpstreamUnavailable, http.StatusBadGateway, "upstream_unavailable"},
}

// writeServiceError translates an error returned by a service.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var pending *entity.PaymentPendingError
	if errors.As(err, &pending) {
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "payment_unavailable",
			Message: err.Error(),
			OrderID: pending.OrderID,
		})
		return
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			writeError(w, k.status, k.code, err.Error())
			return
		}
	}

	slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
