package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced         = "ORDER_PLACED"
	EventTypeOrderCancelled      = "ORDER_CANCELLED"
	EventTypeOrderStatusChanged  = "ORDER_STATUS_CHANGED"
	EventTypeReturnCreated       = "RETURN_CREATED"
	EventTypeReturnStatusChanged = "RETURN_STATUS_CHANGED"
	EventTypeReturnRestocked     = "RETURN_RESTOCKED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// StockLine is a product quantity carried by stock-affecting events.
type StockLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// OrderPlacedEvent published after checkout commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID         int64           `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	CustomerID      int64           `json:"customer_id"`
	Currency        string          `json:"currency"`
	TotalRONInclVAT decimal.Decimal `json:"total_ron_incl_vat"`
	Lines           []StockLine     `json:"lines"`
}

// OrderCancelledEvent published when an order is cancelled and its stock restored
type OrderCancelledEvent struct {
	BaseEvent
	OrderID    int64       `json:"order_id"`
	CustomerID int64       `json:"customer_id"`
	Lines      []StockLine `json:"lines"`
}

// OrderStatusChangedEvent published on admin status changes
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// ReturnCreatedEvent published when a customer opens a return
type ReturnCreatedEvent struct {
	BaseEvent
	ReturnID     int64  `json:"return_id"`
	ReturnNumber string `json:"return_number"`
	OrderID      int64  `json:"order_id"`
	CustomerID   int64  `json:"customer_id"`
	Quantity     int    `json:"quantity"`
	Reason       string `json:"reason"`
}

// ReturnStatusChangedEvent published when a return moves to another status
type ReturnStatusChangedEvent struct {
	BaseEvent
	ReturnID  int64  `json:"return_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// ReturnRestockedEvent published once per return, when its quantity goes back to stock
type ReturnRestockedEvent struct {
	BaseEvent
	ReturnID  int64 `json:"return_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
