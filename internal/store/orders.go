package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ticket-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrder inserts a pending order. The partial unique index on
// (user_id) WHERE status = 'PENDING' makes find-or-create race-safe: when a
// concurrent transaction already created the user's pending order, no row is
// inserted and ErrPendingOrderExists is returned so the caller can re-read.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, status, currency, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) WHERE status = 'PENDING' DO NOTHING
		RETURNING id`

	err := sqlx.GetContext(ctx, s.ext(ctx), &order.ID, query,
		order.UserID, order.Status, order.Currency, order.CreatedAt, order.ExpiresAt)
	if err == sql.ErrNoRows {
		return models.ErrPendingOrderExists
	}
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.ext(ctx), &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &order, nil
}

// GetOrderForUpdate locks the order row so racing lifecycle transitions are
// serialized; the loser re-reads the new status and rejects.
func (s *Store) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.ext(ctx), &order,
		"SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return &order, nil
}

// GetPendingOrderForUpdate finds and locks the user's pending order.
// Returns nil without error when the user has none.
func (s *Store) GetPendingOrderForUpdate(ctx context.Context, userID int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.ext(ctx), &order,
		"SELECT * FROM orders WHERE user_id = $1 AND status = $2 FOR UPDATE",
		userID, models.OrderStatusPending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock pending order: %w", err)
	}
	return &order, nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.ext(ctx).ExecContext(ctx,
		"UPDATE orders SET status = $1 WHERE id = $2", status, orderID)
	return err
}

// DeleteOrder removes an order; used when its last reservation line is removed
func (s *Store) DeleteOrder(ctx context.Context, orderID int64) error {
	_, err := s.ext(ctx).ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	return err
}

// ListExpiredPendingOrderIDs returns ids of pending orders whose deadline has
// passed. Read without locks; the sweeper re-checks each order under its own
// row lock before expiring it.
func (s *Store) ListExpiredPendingOrderIDs(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, s.ext(ctx), &ids,
		"SELECT id FROM orders WHERE status = $1 AND expires_at <= $2 ORDER BY id",
		models.OrderStatusPending, now)
	return ids, err
}

// CreateTicket creates a new reservation line
func (s *Store) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	query := `
		INSERT INTO tickets (event_id, order_id, user_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := sqlx.GetContext(ctx, s.ext(ctx), &ticket.ID, query,
		ticket.EventID, ticket.OrderID, ticket.UserID, ticket.Quantity, ticket.UnitPrice)
	if isUniqueViolation(err) {
		// The order row lock should make this unreachable; surface it loudly.
		return fmt.Errorf("duplicate reservation line for order %d event %d: %w",
			ticket.OrderID, ticket.EventID, err)
	}
	return err
}

// GetTicketByOrderAndEvent finds the order's line for an event.
// Returns nil without error when no line exists.
func (s *Store) GetTicketByOrderAndEvent(ctx context.Context, orderID, eventID int64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := sqlx.GetContext(ctx, s.ext(ctx), &ticket,
		"SELECT * FROM tickets WHERE order_id = $1 AND event_id = $2", orderID, eventID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &ticket, nil
}

// GetTicketsByOrderID retrieves all lines for an order
func (s *Store) GetTicketsByOrderID(ctx context.Context, orderID int64) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := sqlx.SelectContext(ctx, s.ext(ctx), &tickets,
		"SELECT * FROM tickets WHERE order_id = $1 ORDER BY id", orderID)
	return tickets, err
}

// UpdateTicketQuantity updates a line's quantity
func (s *Store) UpdateTicketQuantity(ctx context.Context, ticketID int64, quantity int) error {
	_, err := s.ext(ctx).ExecContext(ctx,
		"UPDATE tickets SET quantity = $1 WHERE id = $2", quantity, ticketID)
	return err
}

// DeleteTicket removes a single reservation line
func (s *Store) DeleteTicket(ctx context.Context, ticketID int64) error {
	_, err := s.ext(ctx).ExecContext(ctx, "DELETE FROM tickets WHERE id = $1", ticketID)
	return err
}

// DeleteTicketsByOrderID removes all lines of an order during a terminal transition
func (s *Store) DeleteTicketsByOrderID(ctx context.Context, orderID int64) error {
	_, err := s.ext(ctx).ExecContext(ctx, "DELETE FROM tickets WHERE order_id = $1", orderID)
	return err
}

// CountTicketsByOrderID counts remaining lines on an order
func (s *Store) CountTicketsByOrderID(ctx context.Context, orderID int64) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, s.ext(ctx), &count,
		"SELECT COUNT(*) FROM tickets WHERE order_id = $1", orderID)
	return count, err
}

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, status, provider_tx_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, s.ext(ctx), payment, query,
		payment.OrderID, payment.Status, payment.ProviderTxID, payment.Amount)
}

// GetPaymentByOrderID retrieves the latest payment for an order
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, s.ext(ctx), &payment,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment not found for order: %d", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentStatus updates payment status
func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID int64, status, providerTxID string) error {
	_, err := s.ext(ctx).ExecContext(ctx,
		"UPDATE payments SET status = $1, provider_tx_id = $2, updated_at = NOW() WHERE id = $3",
		status, providerTxID, paymentID)
	return err
}

// IsEventProcessed checks if a broker event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, s.ext(ctx), &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks a broker event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.ext(ctx).ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
