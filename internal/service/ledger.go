package service

import (
	"context"
	"time"

	"ticket-service/internal/models"
	"ticket-service/internal/util"

	"go.uber.org/zap"
)

// LedgerRepository is the storage surface the ledger mutates capacity
// through. GetEventForUpdate must lock the event row for the duration of the
// ambient transaction.
type LedgerRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEventForUpdate(ctx context.Context, eventID int64) (*models.Event, error)
	UpdateEventAvailable(ctx context.Context, eventID int64, available int) error
	UpdateEventCapacity(ctx context.Context, eventID int64, total, available int) error
}

// AvailabilityCache mirrors committed availability for fast reads.
// Best-effort: errors are logged and never fail the calling operation.
type AvailabilityCache interface {
	GetAvailability(ctx context.Context, eventID int64) (int, bool, error)
	SetAvailability(ctx context.Context, eventID int64, available int) error
	InvalidateAvailability(ctx context.Context, eventID int64) error
}

// Ledger owns the authoritative available-capacity accounting for events.
// Reserve, Release and AdjustCapacity are the only paths that write the
// counter; each one re-reads the row under a FOR UPDATE lock so concurrent
// callers on the same event are serialized and the check-and-decrement is
// atomic.
type Ledger struct {
	repo   LedgerRepository
	logger *zap.Logger
}

// NewLedger creates the inventory ledger
func NewLedger(repo LedgerRepository) *Ledger {
	return &Ledger{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// Reserve atomically checks and decrements availability. Fails with
// ErrInsufficientInventory without mutating when the event cannot cover the
// quantity. Must be called inside the caller's transaction.
func (l *Ledger) Reserve(ctx context.Context, eventID int64, quantity int) error {
	start := time.Now()
	defer func() {
		util.LedgerReserveLatency.Observe(time.Since(start).Seconds())
	}()

	event, err := l.repo.GetEventForUpdate(ctx, eventID)
	if err != nil {
		util.LedgerReservationsFailed.WithLabelValues("event_not_found").Inc()
		return err
	}

	if event.Available < quantity {
		util.LedgerReservationsFailed.WithLabelValues("insufficient_inventory").Inc()
		return models.ErrInsufficientInventory
	}

	return l.repo.UpdateEventAvailable(ctx, eventID, event.Available-quantity)
}

// Release atomically returns quantity to the event. Releasing past total
// capacity means a double release happened somewhere; the invariant violation
// is surfaced as ErrCapacityOverflow instead of being clamped.
func (l *Ledger) Release(ctx context.Context, eventID int64, quantity int) error {
	event, err := l.repo.GetEventForUpdate(ctx, eventID)
	if err != nil {
		return err
	}

	if event.Available+quantity > event.TotalTickets {
		l.logger.Error("release exceeds total capacity",
			zap.Int64("event_id", eventID),
			zap.Int("available", event.Available),
			zap.Int("quantity", quantity),
			zap.Int("total", event.TotalTickets))
		return models.ErrCapacityOverflow
	}

	return l.repo.UpdateEventAvailable(ctx, eventID, event.Available+quantity)
}

// AdjustCapacity resizes an event's total capacity by delta, moving the
// availability by the same amount. Rejects reductions that would cut into
// already-committed reservations.
func (l *Ledger) AdjustCapacity(ctx context.Context, eventID int64, delta int) error {
	return l.repo.WithTx(ctx, func(txCtx context.Context) error {
		event, err := l.repo.GetEventForUpdate(txCtx, eventID)
		if err != nil {
			return err
		}

		if event.Available+delta < 0 {
			return models.ErrCapacityReductionBelowCommitted
		}

		return l.repo.UpdateEventCapacity(txCtx, eventID, event.TotalTickets+delta, event.Available+delta)
	})
}
