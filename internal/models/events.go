package models

import "time"

// Event types
const (
	EventTypeOrderConfirmed = "ORDER_CONFIRMED"
	EventTypeOrderFailed    = "ORDER_FAILED"
	EventTypeOrderExpired   = "ORDER_EXPIRED"
	EventTypeOrderRefunded  = "ORDER_REFUNDED"
	EventTypePaymentSuccess = "PAYMENT_SUCCESS"
	EventTypePaymentFailed  = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all broker events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderLifecycleEvent is published on every terminal order transition.
// TotalAmount is captured before the transition deletes the tickets.
type OrderLifecycleEvent struct {
	BaseEvent
	OrderID     int64            `json:"order_id"`
	UserID      int64            `json:"user_id"`
	Status      string           `json:"status"`
	TotalAmount int64            `json:"total_amount"`
	Lines       []TicketLineData `json:"lines,omitempty"`
}

// PaymentSuccessEvent published when the gateway approves a charge
type PaymentSuccessEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	Amount    int64  `json:"amount"`
	TxID      string `json:"tx_id"`
}

// PaymentFailedEvent published when the gateway declines a charge
type PaymentFailedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	Reason    string `json:"reason"`
}

// TicketLineData represents line data in events
type TicketLineData struct {
	EventID   int64 `json:"event_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}
