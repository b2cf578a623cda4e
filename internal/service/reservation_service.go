package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-service/internal/clock"
	"ticket-service/internal/models"
	"ticket-service/internal/util"

	"go.uber.org/zap"
)

// Line operations. A set_quantity with quantity 0 is accepted as a remove
// for compatibility with clients that use the zero-quantity convention.
const (
	OpCreate      = "create"
	OpSetQuantity = "set_quantity"
	OpRemove      = "remove"
)

const (
	defaultReservationTTL = 15 * time.Minute
	defaultMaxPerLine     = 5
)

// ReservationRepository is the storage surface for batch orchestration.
// Lookup methods returning a nil pointer without error signal absence.
type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEventByID(ctx context.Context, eventID int64) (*models.Event, error)
	GetPendingOrderForUpdate(ctx context.Context, userID int64) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	DeleteOrder(ctx context.Context, orderID int64) error
	GetTicketByOrderAndEvent(ctx context.Context, orderID, eventID int64) (*models.Ticket, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	UpdateTicketQuantity(ctx context.Context, ticketID int64, quantity int) error
	DeleteTicket(ctx context.Context, ticketID int64) error
	CountTicketsByOrderID(ctx context.Context, orderID int64) (int, error)
}

// ReservationService orchestrates multi-line reservation batches against a
// user's single pending order.
type ReservationService struct {
	repo       ReservationRepository
	ledger     *Ledger
	cache      AvailabilityCache
	clock      clock.Clock
	logger     *zap.Logger
	ttl        time.Duration
	maxPerLine int
	currency   string
}

// NewReservationService creates a new reservation service
func NewReservationService(
	repo ReservationRepository,
	ledger *Ledger,
	cache AvailabilityCache,
	clk clock.Clock,
	opts ...ReservationOption,
) *ReservationService {
	svc := &ReservationService{
		repo:       repo,
		ledger:     ledger,
		cache:      cache,
		clock:      clk,
		logger:     util.GetLogger(),
		ttl:        defaultReservationTTL,
		maxPerLine: defaultMaxPerLine,
		currency:   "HUF",
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReservationOption func(*ReservationService)

// WithReservationTTL overrides the pending-order expiry deadline.
func WithReservationTTL(d time.Duration) ReservationOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithMaxTicketsPerLine overrides the per-line quantity ceiling.
func WithMaxTicketsPerLine(n int) ReservationOption {
	return func(s *ReservationService) {
		if n > 0 {
			s.maxPerLine = n
		}
	}
}

// WithCurrency overrides the currency stamped on new orders.
func WithCurrency(c string) ReservationOption {
	return func(s *ReservationService) {
		if c != "" {
			s.currency = c
		}
	}
}

// LineRequest is one requested reservation line
type LineRequest struct {
	EventID  int64  `json:"event_id" binding:"required"`
	Op       string `json:"op,omitempty"`
	Quantity int    `json:"quantity"`
}

// LineSuccess reports one applied line
type LineSuccess struct {
	EventID  int64  `json:"event_id"`
	TicketID int64  `json:"ticket_id,omitempty"`
	Op       string `json:"op"`
	Quantity int    `json:"quantity,omitempty"`
}

// LineError reports one rejected line
type LineError struct {
	EventID int64  `json:"event_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchResult aggregates per-line outcomes. Every requested line appears in
// exactly one of Successes or Errors.
type BatchResult struct {
	OrderID      int64         `json:"order_id"`
	OrderDeleted bool          `json:"order_deleted"`
	Successes    []LineSuccess `json:"successes"`
	Errors       []LineError   `json:"errors"`
}

// SubmitReservations applies a batch of reservation lines inside one
// transaction. Per-line domain failures are collected without aborting
// sibling lines; an infrastructure failure rolls back the whole batch.
func (s *ReservationService) SubmitReservations(ctx context.Context, userID int64, lines []LineRequest) (*BatchResult, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.SubmitReservations")
	defer span.End()

	util.ReservationBatchesTotal.Inc()

	now := s.clock.Now()
	result := &BatchResult{
		Successes: []LineSuccess{},
		Errors:    []LineError{},
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.findOrCreatePendingOrder(txCtx, userID, now)
		if err != nil {
			return err
		}
		result.OrderID = order.ID

		for _, line := range lines {
			success, err := s.applyLine(txCtx, order, line)
			if err != nil {
				if !isLineError(err) {
					return err
				}
				util.ReservationLinesFailedTotal.WithLabelValues(models.ErrorCode(err)).Inc()
				result.Errors = append(result.Errors, LineError{
					EventID: line.EventID,
					Code:    models.ErrorCode(err),
					Message: err.Error(),
				})
				continue
			}
			util.ReservationLinesTotal.WithLabelValues(success.Op).Inc()
			result.Successes = append(result.Successes, success)
		}

		remaining, err := s.repo.CountTicketsByOrderID(txCtx, order.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			// No orphan empty pending orders: removing the last line removes
			// the order itself, in the same transaction.
			if err := s.repo.DeleteOrder(txCtx, order.ID); err != nil {
				return err
			}
			result.OrderDeleted = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reservation batch for user %d: %w", userID, err)
	}

	s.invalidateCache(ctx, result.Successes)

	s.logger.Info("Reservation batch applied",
		zap.Int64("user_id", userID),
		zap.Int64("order_id", result.OrderID),
		zap.Int("successes", len(result.Successes)),
		zap.Int("errors", len(result.Errors)),
		zap.Bool("order_deleted", result.OrderDeleted))

	return result, nil
}

// findOrCreatePendingOrder locks the user's pending order or creates one
// with a fresh expiry deadline. The partial unique index makes the upsert
// race-safe; on conflict the winner's row is re-read under its lock.
func (s *ReservationService) findOrCreatePendingOrder(ctx context.Context, userID int64, now time.Time) (*models.Order, error) {
	order, err := s.repo.GetPendingOrderForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if order != nil {
		return order, nil
	}

	order = &models.Order{
		UserID:    userID,
		Status:    models.OrderStatusPending,
		Currency:  s.currency,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	err = s.repo.CreateOrder(ctx, order)
	if errors.Is(err, models.ErrPendingOrderExists) {
		existing, err := s.repo.GetPendingOrderForUpdate(ctx, userID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, models.ErrPendingOrderExists
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// applyLine dispatches one line: existing line plus quantity 0 or an explicit
// remove deletes it, an existing line otherwise has its quantity changed, and
// anything else creates a new line. Returned line errors are recorded by the
// caller; infrastructure errors abort the batch.
func (s *ReservationService) applyLine(ctx context.Context, order *models.Order, line LineRequest) (LineSuccess, error) {
	event, err := s.repo.GetEventByID(ctx, line.EventID)
	if err != nil {
		return LineSuccess{}, err
	}

	existing, err := s.repo.GetTicketByOrderAndEvent(ctx, order.ID, line.EventID)
	if err != nil {
		return LineSuccess{}, err
	}

	if existing != nil {
		if line.Op == OpRemove || line.Quantity == 0 {
			return s.removeLine(ctx, event, existing)
		}
		return s.changeLineQuantity(ctx, event, existing, line.Quantity)
	}

	if line.Op == OpRemove {
		return LineSuccess{}, models.ErrTicketNotFound
	}
	return s.createLine(ctx, event, order, line.Quantity)
}

func (s *ReservationService) createLine(ctx context.Context, event *models.Event, order *models.Order, quantity int) (LineSuccess, error) {
	if quantity < 1 || quantity > s.maxPerLine {
		return LineSuccess{}, models.ErrInvalidQuantity
	}

	if err := s.ledger.Reserve(ctx, event.ID, quantity); err != nil {
		return LineSuccess{}, err
	}

	ticket := &models.Ticket{
		EventID:   event.ID,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Quantity:  quantity,
		UnitPrice: event.TicketPrice,
	}
	if err := s.repo.CreateTicket(ctx, ticket); err != nil {
		return LineSuccess{}, err
	}

	return LineSuccess{EventID: event.ID, TicketID: ticket.ID, Op: OpCreate, Quantity: quantity}, nil
}

func (s *ReservationService) changeLineQuantity(ctx context.Context, event *models.Event, ticket *models.Ticket, quantity int) (LineSuccess, error) {
	if quantity < 1 || quantity > s.maxPerLine {
		return LineSuccess{}, models.ErrInvalidQuantity
	}

	delta := quantity - ticket.Quantity
	if delta > 0 {
		// A failed reserve leaves the line at its old quantity.
		if err := s.ledger.Reserve(ctx, event.ID, delta); err != nil {
			return LineSuccess{}, err
		}
	} else if delta < 0 {
		if err := s.ledger.Release(ctx, event.ID, -delta); err != nil {
			return LineSuccess{}, err
		}
	}

	if err := s.repo.UpdateTicketQuantity(ctx, ticket.ID, quantity); err != nil {
		return LineSuccess{}, err
	}

	return LineSuccess{EventID: event.ID, TicketID: ticket.ID, Op: OpSetQuantity, Quantity: quantity}, nil
}

func (s *ReservationService) removeLine(ctx context.Context, event *models.Event, ticket *models.Ticket) (LineSuccess, error) {
	if err := s.ledger.Release(ctx, event.ID, ticket.Quantity); err != nil {
		return LineSuccess{}, err
	}
	if err := s.repo.DeleteTicket(ctx, ticket.ID); err != nil {
		return LineSuccess{}, err
	}
	return LineSuccess{EventID: event.ID, TicketID: ticket.ID, Op: OpRemove}, nil
}

// isLineError reports whether err is a per-line domain failure that should
// be recorded in the batch result instead of aborting the transaction.
func isLineError(err error) bool {
	for _, sentinel := range []error{
		models.ErrInvalidQuantity,
		models.ErrInsufficientInventory,
		models.ErrEventNotFound,
		models.ErrTicketNotFound,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func (s *ReservationService) invalidateCache(ctx context.Context, successes []LineSuccess) {
	if s.cache == nil {
		return
	}
	seen := make(map[int64]struct{}, len(successes))
	for _, success := range successes {
		if _, ok := seen[success.EventID]; ok {
			continue
		}
		seen[success.EventID] = struct{}{}
		if err := s.cache.InvalidateAvailability(ctx, success.EventID); err != nil {
			s.logger.Warn("Failed to invalidate availability cache",
				zap.Int64("event_id", success.EventID),
				zap.Error(err))
		}
	}
}
