package service

import (
	"context"
	"testing"
	"time"

	"ticket-service/internal/clock"
	"ticket-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderFixture(t *testing.T, clk clock.Clock) (*fakeStore, *OrderService, *fakePublisher) {
	t.Helper()
	store := newFakeStore()
	publisher := &fakePublisher{}
	svc := NewOrderService(store, NewLedger(store), newFakeCache(), publisher, clk)
	return store, svc, publisher
}

func TestOrderConfirm(t *testing.T) {
	ctx := context.Background()
	store, svc, publisher := newOrderFixture(t, clock.NewFixed(testNow))
	event := store.seedEvent(100, 1000)
	order := store.seedOrder(42, models.OrderStatusPending, testNow.Add(15*time.Minute))
	store.seedTicket(order.ID, event.ID, 42, 3, 1000)

	require.NoError(t, svc.Confirm(ctx, order.ID))

	status, _ := store.orderStatus(order.ID)
	assert.Equal(t, models.OrderStatusConfirmed, status)
	assert.Equal(t, 97, store.eventAvailable(event.ID), "confirm keeps capacity committed")
	assert.Equal(t, 1, store.ticketCount(order.ID), "confirm keeps the lines")

	require.Len(t, publisher.lifecycle, 1)
	published := publisher.lifecycle[0]
	assert.Equal(t, models.EventTypeOrderConfirmed, published.EventType)
	assert.Equal(t, int64(3000), published.TotalAmount)
	require.Len(t, published.Lines, 1)
	assert.Equal(t, event.ID, published.Lines[0].EventID)
}

func TestOrderConfirmTwice(t *testing.T) {
	ctx := context.Background()
	store, svc, _ := newOrderFixture(t, clock.NewFixed(testNow))
	order := store.seedOrder(42, models.OrderStatusPending, testNow.Add(15*time.Minute))

	require.NoError(t, svc.Confirm(ctx, order.ID))
	err := svc.Confirm(ctx, order.ID)
	assert.ErrorIs(t, err, models.ErrInvalidOrderTransition)
}

func TestOrderFail(t *testing.T) {
	ctx := context.Background()
	store, svc, publisher := newOrderFixture(t, clock.NewFixed(testNow))
	event := store.seedEvent(100, 1000)
	order := store.seedOrder(42, models.OrderStatusPending, testNow.Add(15*time.Minute))
	store.seedTicket(order.ID, event.ID, 42, 5, 1000)
	require.Equal(t, 95, store.eventAvailable(event.ID))

	require.NoError(t, svc.Fail(ctx, order.ID))

	status, _ := store.orderStatus(order.ID)
	assert.Equal(t, models.OrderStatusFailed, status)
	assert.Equal(t, 100, store.eventAvailable(event.ID), "fail returns held capacity")
	assert.Equal(t, 0, store.ticketCount(order.ID), "fail deletes the lines")

	require.Len(t, publisher.lifecycle, 1)
	assert.Equal(t, models.EventTypeOrderFailed, publisher.lifecycle[0].EventType)
	assert.Equal(t, int64(5000), publisher.lifecycle[0].TotalAmount, "total is captured before the lines go")
}

func TestOrderExpire(t *testing.T) {
	ctx := context.Background()

	t.Run("not yet due", func(t *testing.T) {
		store, svc, _ := newOrderFixture(t, clock.NewFixed(testNow))
		order := store.seedOrder(42, models.OrderStatusPending, testNow.Add(time.Minute))

		err := svc.Expire(ctx, order.ID)
		assert.ErrorIs(t, err, models.ErrInvalidOrderTransition)

		status, _ := store.orderStatus(order.ID)
		assert.Equal(t, models.OrderStatusPending, status)
	})

	t.Run("overdue pending order", func(t *testing.T) {
		store, svc, _ := newOrderFixture(t, clock.NewFixed(testNow))
		event := store.seedEvent(100, 1000)
		order := store.seedOrder(42, models.OrderStatusPending, testNow.Add(-time.Minute))
		store.seedTicket(order.ID, event.ID, 42, 2, 1000)

		require.NoError(t, svc.Expire(ctx, order.ID))

		status, _ := store.orderStatus(order.ID)
		assert.Equal(t, models.OrderStatusExpired, status)
		assert.Equal(t, 100, store.eventAvailable(event.ID))
		assert.Equal(t, 0, store.ticketCount(order.ID))
	})

	t.Run("deadline exactly now is overdue", func(t *testing.T) {
		store, svc, _ := newOrderFixture(t, clock.NewFixed(testNow))
		order := store.seedOrder(42, models.OrderStatusPending, testNow)

		require.NoError(t, svc.Expire(ctx, order.ID))
	})

	t.Run("confirmed order never expires", func(t *testing.T) {
		store, svc, _ := newOrderFixture(t, clock.NewFixed(testNow))
		order := store.seedOrder(42, models.OrderStatusConfirmed, testNow.Add(-time.Hour))

		err := svc.Expire(ctx, order.ID)
		assert.ErrorIs(t, err, models.ErrInvalidOrderTransition)
	})
}

func TestOrderRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed order refunds and releases", func(t *testing.T) {
		store, svc, publisher := newOrderFixture(t, clock.NewFixed(testNow))
		event := store.seedEvent(100, 1000)
		order := store.seedOrder(42, models.OrderStatusConfirmed, testNow.Add(15*time.Minute))
		store.seedTicket(order.ID, event.ID, 42, 4, 1000)

		require.NoError(t, svc.Refund(ctx, order.ID))

		status, _ := store.orderStatus(order.ID)
		assert.Equal(t, models.OrderStatusRefunded, status)
		assert.Equal(t, 100, store.eventAvailable(event.ID))
		assert.Equal(t, 0, store.ticketCount(order.ID))

		require.Len(t, publisher.lifecycle, 1)
		assert.Equal(t, models.EventTypeOrderRefunded, publisher.lifecycle[0].EventType)
	})

	t.Run("pending order cannot be refunded", func(t *testing.T) {
		store, svc, _ := newOrderFixture(t, clock.NewFixed(testNow))
		order := store.seedOrder(42, models.OrderStatusPending, testNow.Add(15*time.Minute))

		err := svc.Refund(ctx, order.ID)
		assert.ErrorIs(t, err, models.ErrInvalidOrderTransition)
	})

	t.Run("refund twice fails", func(t *testing.T) {
		store, svc, _ := newOrderFixture(t, clock.NewFixed(testNow))
		order := store.seedOrder(42, models.OrderStatusConfirmed, testNow.Add(15*time.Minute))

		require.NoError(t, svc.Refund(ctx, order.ID))
		err := svc.Refund(ctx, order.ID)
		assert.ErrorIs(t, err, models.ErrInvalidOrderTransition)
	})
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	store, svc, _ := newOrderFixture(t, clock.NewFixed(testNow))
	event := store.seedEvent(100, 1000)

	overdueA := store.seedOrder(1, models.OrderStatusPending, testNow.Add(-time.Minute))
	store.seedTicket(overdueA.ID, event.ID, 1, 2, 1000)
	overdueB := store.seedOrder(2, models.OrderStatusPending, testNow.Add(-time.Hour))
	store.seedTicket(overdueB.ID, event.ID, 2, 3, 1000)
	fresh := store.seedOrder(3, models.OrderStatusPending, testNow.Add(10*time.Minute))
	store.seedTicket(fresh.ID, event.ID, 3, 1, 1000)

	expired, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	statusA, _ := store.orderStatus(overdueA.ID)
	statusB, _ := store.orderStatus(overdueB.ID)
	statusFresh, _ := store.orderStatus(fresh.ID)
	assert.Equal(t, models.OrderStatusExpired, statusA)
	assert.Equal(t, models.OrderStatusExpired, statusB)
	assert.Equal(t, models.OrderStatusPending, statusFresh)

	assert.Equal(t, 99, store.eventAvailable(event.ID), "only the fresh order still holds capacity")

	expired, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired, "second sweep finds nothing")
}

func TestGetOrder(t *testing.T) {
	ctx := context.Background()
	store, svc, _ := newOrderFixture(t, clock.NewFixed(testNow))
	eventA := store.seedEvent(100, 1000)
	eventB := store.seedEvent(100, 2500)
	order := store.seedOrder(42, models.OrderStatusPending, testNow.Add(15*time.Minute))
	store.seedTicket(order.ID, eventA.ID, 42, 2, 1000)
	store.seedTicket(order.ID, eventB.ID, 42, 1, 2500)

	got, tickets, total, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Len(t, tickets, 2)
	assert.Equal(t, int64(4500), total)

	_, _, _, err = svc.GetOrder(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}
