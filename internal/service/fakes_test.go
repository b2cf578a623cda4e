package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"ticket-service/internal/models"
)

var errTicketStorage = errors.New("ticket storage unavailable")

// fakeStore is an in-memory stand-in for the sqlx store. WithTx serializes
// transactions with a mutex and rolls back to a snapshot on error, matching
// the atomicity the services rely on. A context marker emulates joining an
// ambient transaction.
type fakeStore struct {
	mu        sync.Mutex
	events    map[int64]models.Event
	orders    map[int64]models.Order
	tickets   map[int64]models.Ticket
	payments  map[int64]models.Payment
	processed map[string]bool
	nextID    int64

	createTicketCalls  int
	failCreateTicketOn int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:    make(map[int64]models.Event),
		orders:    make(map[int64]models.Order),
		tickets:   make(map[int64]models.Ticket),
		payments:  make(map[int64]models.Payment),
		processed: make(map[string]bool),
	}
}

type fakeTxKey struct{}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	snap := f.snapshot()
	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

type fakeSnapshot struct {
	events    map[int64]models.Event
	orders    map[int64]models.Order
	tickets   map[int64]models.Ticket
	payments  map[int64]models.Payment
	processed map[string]bool
	nextID    int64
}

func (f *fakeStore) snapshot() fakeSnapshot {
	snap := fakeSnapshot{
		events:    make(map[int64]models.Event, len(f.events)),
		orders:    make(map[int64]models.Order, len(f.orders)),
		tickets:   make(map[int64]models.Ticket, len(f.tickets)),
		payments:  make(map[int64]models.Payment, len(f.payments)),
		processed: make(map[string]bool, len(f.processed)),
		nextID:    f.nextID,
	}
	for k, v := range f.events {
		snap.events[k] = v
	}
	for k, v := range f.orders {
		snap.orders[k] = v
	}
	for k, v := range f.tickets {
		snap.tickets[k] = v
	}
	for k, v := range f.payments {
		snap.payments[k] = v
	}
	for k, v := range f.processed {
		snap.processed[k] = v
	}
	return snap
}

func (f *fakeStore) restore(snap fakeSnapshot) {
	f.events = snap.events
	f.orders = snap.orders
	f.tickets = snap.tickets
	f.payments = snap.payments
	f.processed = snap.processed
	f.nextID = snap.nextID
}

// locked takes the store mutex unless the call is already inside WithTx.
func (f *fakeStore) locked(ctx context.Context, fn func() error) error {
	if ctx.Value(fakeTxKey{}) == nil {
		f.mu.Lock()
		defer f.mu.Unlock()
	}
	return fn()
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) seedEvent(total int, price int64) *models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	event := models.Event{
		ID:           f.id(),
		Name:         "Concert",
		Location:     "Arena",
		StartsAt:     time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC),
		TotalTickets: total,
		Available:    total,
		TicketPrice:  price,
		Currency:     "HUF",
	}
	f.events[event.ID] = event
	return &event
}

func (f *fakeStore) seedOrder(userID int64, status string, expiresAt time.Time) *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	order := models.Order{
		ID:        f.id(),
		UserID:    userID,
		Status:    status,
		Currency:  "HUF",
		ExpiresAt: expiresAt,
	}
	f.orders[order.ID] = order
	return &order
}

func (f *fakeStore) seedTicket(orderID, eventID, userID int64, quantity int, unitPrice int64) *models.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket := models.Ticket{
		ID:        f.id(),
		EventID:   eventID,
		OrderID:   orderID,
		UserID:    userID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	}
	f.tickets[ticket.ID] = ticket
	ev := f.events[eventID]
	ev.Available -= quantity
	f.events[eventID] = ev
	return &ticket
}

func (f *fakeStore) eventAvailable(eventID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[eventID].Available
}

func (f *fakeStore) orderStatus(orderID int64) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	return order.Status, ok
}

func (f *fakeStore) ticketCount(orderID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, t := range f.tickets {
		if t.OrderID == orderID {
			count++
		}
	}
	return count
}

func (f *fakeStore) CreateEvent(ctx context.Context, event *models.Event) error {
	return f.locked(ctx, func() error {
		event.ID = f.id()
		event.CreatedAt = time.Now()
		f.events[event.ID] = *event
		return nil
	})
}

func (f *fakeStore) GetEventByID(ctx context.Context, eventID int64) (*models.Event, error) {
	var out *models.Event
	err := f.locked(ctx, func() error {
		event, ok := f.events[eventID]
		if !ok {
			return models.ErrEventNotFound
		}
		out = &event
		return nil
	})
	return out, err
}

func (f *fakeStore) GetEventForUpdate(ctx context.Context, eventID int64) (*models.Event, error) {
	return f.GetEventByID(ctx, eventID)
}

func (f *fakeStore) ListEvents(ctx context.Context) ([]models.Event, error) {
	var out []models.Event
	err := f.locked(ctx, func() error {
		for _, event := range f.events {
			out = append(out, event)
		}
		return nil
	})
	return out, err
}

func (f *fakeStore) UpdateEventAvailable(ctx context.Context, eventID int64, available int) error {
	return f.locked(ctx, func() error {
		event, ok := f.events[eventID]
		if !ok {
			return models.ErrEventNotFound
		}
		event.Available = available
		f.events[eventID] = event
		return nil
	})
}

func (f *fakeStore) UpdateEventCapacity(ctx context.Context, eventID int64, total, available int) error {
	return f.locked(ctx, func() error {
		event, ok := f.events[eventID]
		if !ok {
			return models.ErrEventNotFound
		}
		event.TotalTickets = total
		event.Available = available
		f.events[eventID] = event
		return nil
	})
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *models.Order) error {
	return f.locked(ctx, func() error {
		for _, existing := range f.orders {
			if existing.UserID == order.UserID && existing.Status == models.OrderStatusPending {
				return models.ErrPendingOrderExists
			}
		}
		order.ID = f.id()
		f.orders[order.ID] = *order
		return nil
	})
}

func (f *fakeStore) GetOrderByID(ctx context.Context, orderID int64) (*models.Order, error) {
	var out *models.Order
	err := f.locked(ctx, func() error {
		order, ok := f.orders[orderID]
		if !ok {
			return models.ErrOrderNotFound
		}
		out = &order
		return nil
	})
	return out, err
}

func (f *fakeStore) GetOrderForUpdate(ctx context.Context, orderID int64) (*models.Order, error) {
	return f.GetOrderByID(ctx, orderID)
}

func (f *fakeStore) GetPendingOrderForUpdate(ctx context.Context, userID int64) (*models.Order, error) {
	var out *models.Order
	err := f.locked(ctx, func() error {
		for _, order := range f.orders {
			if order.UserID == userID && order.Status == models.OrderStatusPending {
				o := order
				out = &o
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	return f.locked(ctx, func() error {
		order, ok := f.orders[orderID]
		if !ok {
			return models.ErrOrderNotFound
		}
		order.Status = status
		f.orders[orderID] = order
		return nil
	})
}

func (f *fakeStore) DeleteOrder(ctx context.Context, orderID int64) error {
	return f.locked(ctx, func() error {
		delete(f.orders, orderID)
		return nil
	})
}

func (f *fakeStore) ListExpiredPendingOrderIDs(ctx context.Context, now time.Time) ([]int64, error) {
	var out []int64
	err := f.locked(ctx, func() error {
		for _, order := range f.orders {
			if order.Status == models.OrderStatusPending && !now.Before(order.ExpiresAt) {
				out = append(out, order.ID)
			}
		}
		return nil
	})
	return out, err
}

func (f *fakeStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	return f.locked(ctx, func() error {
		f.createTicketCalls++
		if f.failCreateTicketOn > 0 && f.createTicketCalls == f.failCreateTicketOn {
			return errTicketStorage
		}
		ticket.ID = f.id()
		f.tickets[ticket.ID] = *ticket
		return nil
	})
}

func (f *fakeStore) GetTicketByOrderAndEvent(ctx context.Context, orderID, eventID int64) (*models.Ticket, error) {
	var out *models.Ticket
	err := f.locked(ctx, func() error {
		for _, ticket := range f.tickets {
			if ticket.OrderID == orderID && ticket.EventID == eventID {
				t := ticket
				out = &t
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (f *fakeStore) GetTicketsByOrderID(ctx context.Context, orderID int64) ([]models.Ticket, error) {
	var out []models.Ticket
	err := f.locked(ctx, func() error {
		for _, ticket := range f.tickets {
			if ticket.OrderID == orderID {
				out = append(out, ticket)
			}
		}
		return nil
	})
	return out, err
}

func (f *fakeStore) UpdateTicketQuantity(ctx context.Context, ticketID int64, quantity int) error {
	return f.locked(ctx, func() error {
		ticket, ok := f.tickets[ticketID]
		if !ok {
			return models.ErrTicketNotFound
		}
		ticket.Quantity = quantity
		f.tickets[ticketID] = ticket
		return nil
	})
}

func (f *fakeStore) DeleteTicket(ctx context.Context, ticketID int64) error {
	return f.locked(ctx, func() error {
		delete(f.tickets, ticketID)
		return nil
	})
}

func (f *fakeStore) DeleteTicketsByOrderID(ctx context.Context, orderID int64) error {
	return f.locked(ctx, func() error {
		for id, ticket := range f.tickets {
			if ticket.OrderID == orderID {
				delete(f.tickets, id)
			}
		}
		return nil
	})
}

func (f *fakeStore) CountTicketsByOrderID(ctx context.Context, orderID int64) (int, error) {
	count := 0
	err := f.locked(ctx, func() error {
		for _, ticket := range f.tickets {
			if ticket.OrderID == orderID {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (f *fakeStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return f.locked(ctx, func() error {
		payment.ID = f.id()
		payment.CreatedAt = time.Now()
		f.payments[payment.ID] = *payment
		return nil
	})
}

func (f *fakeStore) UpdatePaymentStatus(ctx context.Context, paymentID int64, status, providerTxID string) error {
	return f.locked(ctx, func() error {
		payment, ok := f.payments[paymentID]
		if !ok {
			return models.ErrOrderNotFound
		}
		payment.Status = status
		payment.ProviderTxID = providerTxID
		f.payments[paymentID] = payment
		return nil
	})
}

func (f *fakeStore) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var out *models.Payment
	err := f.locked(ctx, func() error {
		var latest *models.Payment
		for _, payment := range f.payments {
			if payment.OrderID != orderID {
				continue
			}
			p := payment
			if latest == nil || p.ID > latest.ID {
				latest = &p
			}
		}
		if latest == nil {
			return models.ErrOrderNotFound
		}
		out = latest
		return nil
	})
	return out, err
}

func (f *fakeStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	processed := false
	err := f.locked(ctx, func() error {
		processed = f.processed[eventID]
		return nil
	})
	return processed, err
}

func (f *fakeStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	return f.locked(ctx, func() error {
		f.processed[eventID] = true
		return nil
	})
}

// fakeCache is an in-memory availability cache recording invalidations.
type fakeCache struct {
	mu          sync.Mutex
	values      map[int64]int
	invalidated []int64
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[int64]int)}
}

func (c *fakeCache) GetAvailability(ctx context.Context, eventID int64) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return 0, false, c.getErr
	}
	v, ok := c.values[eventID]
	return v, ok, nil
}

func (c *fakeCache) SetAvailability(ctx context.Context, eventID int64, available int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[eventID] = available
	return nil
}

func (c *fakeCache) InvalidateAvailability(ctx context.Context, eventID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, eventID)
	c.invalidated = append(c.invalidated, eventID)
	return nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu        sync.Mutex
	lifecycle []models.OrderLifecycleEvent
	successes []models.PaymentSuccessEvent
	failures  []models.PaymentFailedEvent
}

func (p *fakePublisher) PublishOrderLifecycle(ctx context.Context, event *models.OrderLifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lifecycle = append(p.lifecycle, *event)
	return nil
}

func (p *fakePublisher) PublishPaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.successes = append(p.successes, *event)
	return nil
}

func (p *fakePublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, *event)
	return nil
}

// fakeGateway returns a fixed verdict.
type fakeGateway struct {
	verdict Verdict
	err     error
}

func (g *fakeGateway) Charge(_ context.Context, _ int64, _ int64) (Verdict, error) {
	return g.verdict, g.err
}
