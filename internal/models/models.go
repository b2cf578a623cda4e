package models

import "time"

// Event represents a ticketed event with capacity-bounded inventory.
// Available is the authoritative counter; it is mutated only through the
// inventory ledger and satisfies 0 <= Available <= TotalTickets at all times.
type Event struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Description  string    `db:"description" json:"description,omitempty"`
	Location     string    `db:"location" json:"location"`
	StartsAt     time.Time `db:"starts_at" json:"starts_at"`
	TotalTickets int       `db:"total_tickets" json:"total_tickets"`
	Available    int       `db:"available_tickets" json:"available_tickets"`
	TicketPrice  int64     `db:"ticket_price" json:"ticket_price"`
	Currency     string    `db:"currency" json:"currency"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Ticket is one order's claim on a quantity of an event's capacity.
// Tickets exist only while their order is non-terminal.
type Ticket struct {
	ID        int64 `db:"id" json:"id"`
	EventID   int64 `db:"event_id" json:"event_id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	UserID    int64 `db:"user_id" json:"user_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

// Order groups reservation lines for one user with a lifecycle and an expiry
// deadline. A user has at most one PENDING order at a time.
type Order struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Status    string    `db:"status" json:"status"`
	Currency  string    `db:"currency" json:"currency"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// Payment is an audit record of a gateway verdict for an order.
type Payment struct {
	ID           int64     `db:"id" json:"id"`
	OrderID      int64     `db:"order_id" json:"order_id"`
	Status       string    `db:"status" json:"status"`
	ProviderTxID string    `db:"provider_tx_id" json:"provider_tx_id,omitempty"`
	Amount       int64     `db:"amount" json:"amount"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Order statuses. PENDING is the only state holding inventory.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusFailed    = "FAILED"
	OrderStatusExpired   = "EXPIRED"
	OrderStatusRefunded  = "REFUNDED"
)

// Payment statuses
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

// ProcessedEvent guards against reprocessing consumed broker events.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// TotalPrice sums quantity times unit price over the order's current tickets.
// Terminal transitions delete tickets, so callers needing a historical total
// must capture it before the transition.
func TotalPrice(tickets []Ticket) int64 {
	var total int64
	for _, t := range tickets {
		total += t.UnitPrice * int64(t.Quantity)
	}
	return total
}
