package worker

import (
	"context"
	"log"
	"time"

	"ticket-service/internal/broker"
	"ticket-service/internal/service"
	"ticket-service/internal/util"

	"go.uber.org/zap"
)

// Locker is the distributed lock guarding the sweep so multiple instances
// don't scan the same overdue orders at once. The sweep itself is safe to
// run concurrently; the lock only avoids wasted work.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

const sweepLockKey = "expiry-sweep"

// SweepWorker runs the expiry sweep on a fixed interval.
type SweepWorker struct {
	orders   *service.OrderService
	locker   Locker
	interval time.Duration
	logger   *zap.Logger
}

// NewSweepWorker creates a new sweep worker. locker may be nil for
// single-instance deployments.
func NewSweepWorker(orders *service.OrderService, locker Locker, interval time.Duration) *SweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepWorker{
		orders:   orders,
		locker:   locker,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *SweepWorker) Start(ctx context.Context) error {
	log.Printf("Starting sweep worker, interval=%s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sweep worker context cancelled, stopping...")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *SweepWorker) runOnce(ctx context.Context) {
	if w.locker != nil {
		acquired, err := w.locker.AcquireLock(ctx, sweepLockKey, w.interval)
		if err != nil {
			w.logger.Warn("Failed to acquire sweep lock, sweeping anyway", zap.Error(err))
		} else if !acquired {
			return
		} else {
			defer func() {
				if err := w.locker.ReleaseLock(ctx, sweepLockKey); err != nil {
					w.logger.Warn("Failed to release sweep lock", zap.Error(err))
				}
			}()
		}
	}

	expired, err := w.orders.SweepExpired(ctx)
	if err != nil {
		w.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		w.logger.Info("Expiry sweep run", zap.Int("expired", expired))
	}
}

// PaymentWorker consumes asynchronous payment verdicts from the broker and
// drives the corresponding order transitions.
type PaymentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer *broker.Consumer, payments *service.PaymentService) *PaymentWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentSuccess(payments.HandlePaymentSuccess)
	eventHandler.OnPaymentFailed(payments.HandlePaymentFailed)

	return &PaymentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *PaymentWorker) Start(ctx context.Context) error {
	log.Println("Starting payment worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *PaymentWorker) Stop() error {
	log.Println("Stopping payment worker...")
	return w.consumer.Close()
}
