package entity

import (
	"errors"
	"fmt"
)

// Error kinds returned by the services. Callers match them with errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrOutOfStock            = fmt.Errorf("product out of stock: %w", ErrInsufficientStock)
	ErrVoucherExpired        = errors.New("voucher expired")
	ErrVoucherNotStarted     = errors.New("voucher not yet active")
	ErrVoucherMinValueNotMet = errors.New("order value below voucher minimum")
	ErrAlreadyCancelled      = errors.New("order already cancelled")
	ErrCannotCancel          = errors.New("order cannot be cancelled")
	ErrInvalidTransition     = errors.New("invalid stage transition")
	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
	ErrConflict              = errors.New("modified concurrently")
)

// PaymentPendingError is returned by CreateOrder when the order was persisted
// but the payment gateway could not issue a payment URL. The order stays
// pending and can be retried or cancelled.
type PaymentPendingError struct {
	OrderID string
	Err     error
}

func (e *PaymentPendingError) Error() string {
	return fmt.Sprintf("order %s created but payment url unavailable: %v", e.OrderID, e.Err)
}

func (e *PaymentPendingError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Err}
}
