package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-service/internal/clock"
	"ticket-service/internal/models"
	"ticket-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderRepository is the storage surface for lifecycle transitions.
type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetOrderByID(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, orderID int64) (*models.Order, error)
	GetTicketsByOrderID(ctx context.Context, orderID int64) ([]models.Ticket, error)
	DeleteTicketsByOrderID(ctx context.Context, orderID int64) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	ListExpiredPendingOrderIDs(ctx context.Context, now time.Time) ([]int64, error)
}

// LifecyclePublisher publishes terminal order transitions.
type LifecyclePublisher interface {
	PublishOrderLifecycle(ctx context.Context, event *models.OrderLifecycleEvent) error
}

// OrderService drives the order state machine:
// PENDING -> {CONFIRMED, FAILED, EXPIRED}, CONFIRMED -> REFUNDED.
// Every transition locks the order row, so racing transitions have exactly
// one winner; the loser observes the new status and gets
// ErrInvalidOrderTransition.
type OrderService struct {
	repo      OrderRepository
	ledger    *Ledger
	cache     AvailabilityCache
	publisher LifecyclePublisher
	clock     clock.Clock
	logger    *zap.Logger
}

// NewOrderService creates a new order service. cache and publisher may be nil.
func NewOrderService(
	repo OrderRepository,
	ledger *Ledger,
	cache AvailabilityCache,
	publisher LifecyclePublisher,
	clk clock.Clock,
) *OrderService {
	return &OrderService{
		repo:      repo,
		ledger:    ledger,
		cache:     cache,
		publisher: publisher,
		clock:     clk,
		logger:    util.GetLogger(),
	}
}

// transitionOutcome captures what a terminal transition needs to report
// after commit: the tickets are gone by then.
type transitionOutcome struct {
	order models.Order
	lines []models.TicketLineData
	total int64
}

func outcomeFrom(order *models.Order, tickets []models.Ticket) transitionOutcome {
	out := transitionOutcome{order: *order, total: models.TotalPrice(tickets)}
	for _, t := range tickets {
		out.lines = append(out.lines, models.TicketLineData{
			EventID:   t.EventID,
			Quantity:  t.Quantity,
			UnitPrice: t.UnitPrice,
		})
	}
	return out
}

// Confirm transitions a pending order to CONFIRMED. Inventory stays
// committed; only Refund returns it.
func (s *OrderService) Confirm(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Confirm")
	defer span.End()

	var out transitionOutcome
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			return s.rejectTransition(order, models.OrderStatusConfirmed)
		}

		tickets, err := s.repo.GetTicketsByOrderID(txCtx, order.ID)
		if err != nil {
			return err
		}
		out = outcomeFrom(order, tickets)

		return s.repo.UpdateOrderStatus(txCtx, order.ID, models.OrderStatusConfirmed)
	})
	if err != nil {
		return err
	}

	s.finishTransition(ctx, out, models.OrderStatusConfirmed, models.EventTypeOrderConfirmed)
	return nil
}

// Fail transitions a pending order to FAILED, returning all held capacity
// and deleting the order's lines in the same transaction.
func (s *OrderService) Fail(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Fail")
	defer span.End()

	var out transitionOutcome
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			return s.rejectTransition(order, models.OrderStatusFailed)
		}

		out, err = s.releaseAndClear(txCtx, order)
		if err != nil {
			return err
		}

		return s.repo.UpdateOrderStatus(txCtx, order.ID, models.OrderStatusFailed)
	})
	if err != nil {
		return err
	}

	s.finishTransition(ctx, out, models.OrderStatusFailed, models.EventTypeOrderFailed)
	return nil
}

// Expire transitions an overdue pending order to EXPIRED with the Fail
// effect. An order that is not pending, or not yet past its deadline,
// rejects the transition.
func (s *OrderService) Expire(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Expire")
	defer span.End()

	now := s.clock.Now()

	var out transitionOutcome
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending || now.Before(order.ExpiresAt) {
			return s.rejectTransition(order, models.OrderStatusExpired)
		}

		out, err = s.releaseAndClear(txCtx, order)
		if err != nil {
			return err
		}

		return s.repo.UpdateOrderStatus(txCtx, order.ID, models.OrderStatusExpired)
	})
	if err != nil {
		return err
	}

	s.finishTransition(ctx, out, models.OrderStatusExpired, models.EventTypeOrderExpired)
	return nil
}

// Refund cancels a confirmed order: capacity is returned, lines deleted,
// status moves to REFUNDED.
func (s *OrderService) Refund(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Refund")
	defer span.End()

	var out transitionOutcome
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusConfirmed {
			return s.rejectTransition(order, models.OrderStatusRefunded)
		}

		out, err = s.releaseAndClear(txCtx, order)
		if err != nil {
			return err
		}

		return s.repo.UpdateOrderStatus(txCtx, order.ID, models.OrderStatusRefunded)
	})
	if err != nil {
		return err
	}

	s.finishTransition(ctx, out, models.OrderStatusRefunded, models.EventTypeOrderRefunded)
	return nil
}

// SweepExpired expires every overdue pending order, each in its own
// transaction. Orders that lose a concurrent race are skipped, which also
// makes re-running the sweep a no-op.
func (s *OrderService) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SweepExpired")
	defer span.End()

	util.SweepRunsTotal.Inc()
	start := time.Now()
	defer func() {
		util.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	ids, err := s.repo.ListExpiredPendingOrderIDs(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("list expired orders: %w", err)
	}

	expired := 0
	for _, id := range ids {
		err := s.Expire(ctx, id)
		if errors.Is(err, models.ErrInvalidOrderTransition) || errors.Is(err, models.ErrOrderNotFound) {
			// A user-driven transition won the race between the scan and the lock.
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
		util.SweepExpiredTotal.Inc()
	}

	if expired > 0 {
		s.logger.Info("Expiry sweep completed", zap.Int("expired", expired))
	}
	return expired, nil
}

// GetOrder retrieves an order with its lines and computed total price.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.Ticket, int64, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, 0, err
	}

	tickets, err := s.repo.GetTicketsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, 0, err
	}

	return order, tickets, models.TotalPrice(tickets), nil
}

// releaseAndClear returns every line's quantity to its event and deletes the
// lines. Runs under the order row lock inside the ambient transaction.
func (s *OrderService) releaseAndClear(ctx context.Context, order *models.Order) (transitionOutcome, error) {
	tickets, err := s.repo.GetTicketsByOrderID(ctx, order.ID)
	if err != nil {
		return transitionOutcome{}, err
	}

	for _, t := range tickets {
		if err := s.ledger.Release(ctx, t.EventID, t.Quantity); err != nil {
			return transitionOutcome{}, fmt.Errorf("release %d tickets for event %d: %w", t.Quantity, t.EventID, err)
		}
	}

	if err := s.repo.DeleteTicketsByOrderID(ctx, order.ID); err != nil {
		return transitionOutcome{}, err
	}

	return outcomeFrom(order, tickets), nil
}

func (s *OrderService) rejectTransition(order *models.Order, to string) error {
	util.OrderTransitionConflictsTotal.Inc()
	return fmt.Errorf("order %d is %s, cannot transition to %s: %w",
		order.ID, order.Status, to, models.ErrInvalidOrderTransition)
}

// finishTransition runs after commit: metrics, cache invalidation for
// released events and the lifecycle event, all best-effort.
func (s *OrderService) finishTransition(ctx context.Context, out transitionOutcome, status, eventType string) {
	util.OrderTransitionsTotal.WithLabelValues(status).Inc()

	if s.cache != nil {
		for _, line := range out.lines {
			if err := s.cache.InvalidateAvailability(ctx, line.EventID); err != nil {
				s.logger.Warn("Failed to invalidate availability cache",
					zap.Int64("event_id", line.EventID),
					zap.Error(err))
			}
		}
	}

	s.logger.Info("Order transition",
		zap.Int64("order_id", out.order.ID),
		zap.String("to", status),
		zap.Int64("total_amount", out.total))

	if s.publisher == nil {
		return
	}
	event := &models.OrderLifecycleEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: s.clock.Now(),
		},
		OrderID:     out.order.ID,
		UserID:      out.order.UserID,
		Status:      status,
		TotalAmount: out.total,
		Lines:       out.lines,
	}
	if err := s.publisher.PublishOrderLifecycle(ctx, event); err != nil {
		s.logger.Error("Failed to publish order lifecycle event",
			zap.Int64("order_id", out.order.ID),
			zap.Error(err))
	}
}
