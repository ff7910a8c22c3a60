package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is a domain event published to the notification queue. EventType
// doubles as the topic name.
type Event interface {
	EventType() string
}

// Topics, one per event type.
const (
	TopicOrderCreated      = "order.created"
	TopicOrderCancelled    = "order.cancelled"
	TopicOrderStageChanged = "order.stage_changed"
	TopicInventoryAdjusted = "inventory.adjusted"
)

// OrderCreated is emitted once an order has a payment URL and its stock is
// committed.
type OrderCreated struct {
	OrderID           string          `json:"order_id"`
	Domain            string          `json:"domain"`
	UserEmail         string          `json:"user"`
	Items             []OrderItem     `json:"items"`
	PriceAfterVoucher decimal.Decimal `json:"price_after_voucher"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (e OrderCreated) EventType() string { return TopicOrderCreated }

// OrderCancelled is emitted when an order is cancelled and its stock returned.
type OrderCancelled struct {
	OrderID     string    `json:"order_id"`
	Domain      string    `json:"domain"`
	UserEmail   string    `json:"user"`
	CancelledBy string    `json:"cancelled_by"`
	NoteCancel  string    `json:"note_cancel,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

func (e OrderCancelled) EventType() string { return TopicOrderCancelled }

// OrderStageChanged is emitted when an operator moves an order forward.
type OrderStageChanged struct {
	OrderID   string    `json:"order_id"`
	Domain    string    `json:"domain"`
	From      Stage     `json:"from"`
	To        Stage     `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

func (e OrderStageChanged) EventType() string { return TopicOrderStageChanged }

// InventoryAdjusted is emitted when an inventory form changes stock.
type InventoryAdjusted struct {
	FormID     string            `json:"form_id"`
	Domain     string            `json:"domain"`
	Type       InventoryFormType `json:"type"`
	Deltas     []StockDelta      `json:"deltas"`
	AdjustedAt time.Time         `json:"adjusted_at"`
}

func (e InventoryAdjusted) EventType() string { return TopicInventoryAdjusted }
