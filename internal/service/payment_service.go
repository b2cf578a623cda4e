package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"ticket-service/internal/models"
	"ticket-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentRepository records gateway verdicts and consumer-side idempotency.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdatePaymentStatus(ctx context.Context, paymentID int64, status, providerTxID string) error
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// VerdictPublisher publishes payment verdicts for downstream consumers.
type VerdictPublisher interface {
	PublishPaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// Verdict is the gateway's answer for a charge attempt.
type Verdict struct {
	Approved bool
	TxID     string
	Reason   string
}

// Gateway is the external payment collaborator. The service only consumes
// its pass/fail verdict.
type Gateway interface {
	Charge(ctx context.Context, orderID int64, amount int64) (Verdict, error)
}

type mockGateway struct {
	successRate float64
}

// NewMockGateway returns a gateway that approves charges at the given rate,
// for development and testing.
func NewMockGateway(successRate float64) Gateway {
	return &mockGateway{successRate: successRate}
}

func (g *mockGateway) Charge(_ context.Context, _ int64, _ int64) (Verdict, error) {
	time.Sleep(time.Duration(100+rand.Intn(400)) * time.Millisecond)

	if rand.Float64() < g.successRate {
		return Verdict{
			Approved: true,
			TxID:     fmt.Sprintf("TXN-%s", uuid.New().String()[:8]),
		}, nil
	}
	return Verdict{Approved: false, Reason: "payment_declined"}, nil
}

// PaymentService consumes gateway verdicts and drives Confirm/Fail.
type PaymentService struct {
	repo      PaymentRepository
	orders    *OrderService
	gateway   Gateway
	publisher VerdictPublisher
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service. publisher may be nil.
func NewPaymentService(
	repo PaymentRepository,
	orders *OrderService,
	gateway Gateway,
	publisher VerdictPublisher,
) *PaymentService {
	return &PaymentService{
		repo:      repo,
		orders:    orders,
		gateway:   gateway,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// ProcessPayment charges the order's total and applies the verdict: approved
// confirms the order, declined fails it and returns its capacity. The total
// is captured before the transition since Fail deletes the lines.
func (ps *PaymentService) ProcessPayment(ctx context.Context, orderID int64) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ProcessPayment")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	order, _, total, err := ps.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, fmt.Errorf("order %d is %s, cannot pay: %w",
			order.ID, order.Status, models.ErrInvalidOrderTransition)
	}

	payment := &models.Payment{
		OrderID: orderID,
		Status:  models.PaymentStatusPending,
		Amount:  total,
	}
	if err := ps.repo.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	verdict, err := ps.gateway.Charge(ctx, orderID, total)
	if err != nil {
		// No verdict: leave the order pending so the caller can retry or the
		// sweeper reclaims it at the deadline.
		return nil, fmt.Errorf("payment gateway: %w", err)
	}

	if verdict.Approved {
		return ps.settleSuccess(ctx, payment, order, total, verdict.TxID)
	}
	return ps.settleFailure(ctx, payment, order, verdict.Reason)
}

func (ps *PaymentService) settleSuccess(ctx context.Context, payment *models.Payment, order *models.Order, total int64, txID string) (*models.Payment, error) {
	if err := ps.orders.Confirm(ctx, order.ID); err != nil {
		// The sweeper may have expired the order while the charge was in
		// flight; the charge record is marked failed and the error surfaced.
		if updateErr := ps.repo.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusFailed, txID); updateErr != nil {
			ps.logger.Error("Failed to mark payment failed after lost confirm race", zap.Error(updateErr))
		}
		return nil, err
	}

	if err := ps.repo.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusSuccess, txID); err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	payment.Status = models.PaymentStatusSuccess
	payment.ProviderTxID = txID

	util.PaymentSuccessTotal.Inc()
	ps.logger.Info("Payment succeeded",
		zap.Int64("order_id", order.ID),
		zap.String("tx_id", txID))

	if ps.publisher != nil {
		event := &models.PaymentSuccessEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentSuccess,
				Timestamp: time.Now(),
			},
			OrderID:   order.ID,
			PaymentID: payment.ID,
			Amount:    total,
			TxID:      txID,
		}
		if err := ps.publisher.PublishPaymentSuccess(ctx, event); err != nil {
			ps.logger.Error("Failed to publish PaymentSuccess event", zap.Error(err))
		}
	}

	return payment, nil
}

func (ps *PaymentService) settleFailure(ctx context.Context, payment *models.Payment, order *models.Order, reason string) (*models.Payment, error) {
	if err := ps.orders.Fail(ctx, order.ID); err != nil && !errors.Is(err, models.ErrInvalidOrderTransition) {
		return nil, err
	}

	if err := ps.repo.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusFailed, ""); err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	payment.Status = models.PaymentStatusFailed

	util.PaymentFailedTotal.Inc()
	ps.logger.Warn("Payment failed",
		zap.Int64("order_id", order.ID),
		zap.String("reason", reason))

	if ps.publisher != nil {
		event := &models.PaymentFailedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentFailed,
				Timestamp: time.Now(),
			},
			OrderID:   order.ID,
			PaymentID: payment.ID,
			Reason:    reason,
		}
		if err := ps.publisher.PublishPaymentFailed(ctx, event); err != nil {
			ps.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
		}
	}

	return payment, nil
}

// HandlePaymentSuccess applies an asynchronous gateway approval, e.g. from
// an external payment service publishing to the order topic. Idempotent via
// the processed-events table; a lost transition race is logged and the event
// still marked processed so it is not redelivered forever.
func (ps *PaymentService) HandlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandlePaymentSuccess")
	defer span.End()

	processed, err := ps.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		return nil
	}

	if err := ps.orders.Confirm(ctx, event.OrderID); err != nil {
		if !errors.Is(err, models.ErrInvalidOrderTransition) {
			return err
		}
		ps.logger.Warn("Async payment success for non-pending order",
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
	}

	return ps.repo.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

// HandlePaymentFailed applies an asynchronous gateway decline.
func (ps *PaymentService) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandlePaymentFailed")
	defer span.End()

	processed, err := ps.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		return nil
	}

	if err := ps.orders.Fail(ctx, event.OrderID); err != nil {
		if !errors.Is(err, models.ErrInvalidOrderTransition) {
			return err
		}
		ps.logger.Warn("Async payment failure for non-pending order",
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
	}

	return ps.repo.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

// GetPayment retrieves the latest payment for an order
func (ps *PaymentService) GetPayment(ctx context.Context, orderID int64) (*models.Payment, error) {
	return ps.repo.GetPaymentByOrderID(ctx, orderID)
}
