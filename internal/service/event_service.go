package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-service/internal/models"
	"ticket-service/internal/util"

	"go.uber.org/zap"
)

// CatalogRepository is the storage surface for the event catalog.
type CatalogRepository interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEventByID(ctx context.Context, eventID int64) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
}

// EventService manages the event catalog and administrative capacity
// resizes. All capacity writes go through the ledger.
type EventService struct {
	repo     CatalogRepository
	ledger   *Ledger
	cache    AvailabilityCache
	logger   *zap.Logger
	currency string
}

// NewEventService creates a new event service. cache may be nil.
func NewEventService(repo CatalogRepository, ledger *Ledger, cache AvailabilityCache, currency string) *EventService {
	if currency == "" {
		currency = "HUF"
	}
	return &EventService{
		repo:     repo,
		ledger:   ledger,
		cache:    cache,
		logger:   util.GetLogger(),
		currency: currency,
	}
}

// CreateEventInput describes a new event
type CreateEventInput struct {
	Name         string
	Description  string
	Location     string
	StartsAt     time.Time
	TotalTickets int
	TicketPrice  int64
	Currency     string
}

var errInvalidEvent = errors.New("invalid event")

// CreateEvent registers an event with its full capacity available.
func (s *EventService) CreateEvent(ctx context.Context, in CreateEventInput) (*models.Event, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("name is required: %w", errInvalidEvent)
	}
	if in.TotalTickets < 0 {
		return nil, fmt.Errorf("total tickets must not be negative: %w", errInvalidEvent)
	}
	if in.TicketPrice < 0 {
		return nil, fmt.Errorf("ticket price must not be negative: %w", errInvalidEvent)
	}

	currency := in.Currency
	if currency == "" {
		currency = s.currency
	}

	event := &models.Event{
		Name:         in.Name,
		Description:  in.Description,
		Location:     in.Location,
		StartsAt:     in.StartsAt,
		TotalTickets: in.TotalTickets,
		Available:    in.TotalTickets,
		TicketPrice:  in.TicketPrice,
		Currency:     currency,
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.logger.Info("Event created",
		zap.Int64("event_id", event.ID),
		zap.String("name", event.Name),
		zap.Int("total_tickets", event.TotalTickets))

	return event, nil
}

// GetEvent retrieves an event and refreshes its cached availability.
func (s *EventService) GetEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetAvailability(ctx, event.ID, event.Available); err != nil {
			s.logger.Warn("Failed to refresh availability cache",
				zap.Int64("event_id", event.ID),
				zap.Error(err))
		}
	}
	return event, nil
}

// GetAvailability answers the hot "how many left" question cache-first,
// falling back to the database on a miss.
func (s *EventService) GetAvailability(ctx context.Context, eventID int64) (int, error) {
	if s.cache != nil {
		available, ok, err := s.cache.GetAvailability(ctx, eventID)
		if err != nil {
			s.logger.Warn("Availability cache read failed",
				zap.Int64("event_id", eventID),
				zap.Error(err))
		} else if ok {
			return available, nil
		}
	}

	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return event.Available, nil
}

// ListEvents retrieves the catalog
func (s *EventService) ListEvents(ctx context.Context) ([]models.Event, error) {
	return s.repo.ListEvents(ctx)
}

// AdjustCapacity resizes an event's total capacity by delta through the
// ledger and returns the updated event.
func (s *EventService) AdjustCapacity(ctx context.Context, eventID int64, delta int) (*models.Event, error) {
	if err := s.ledger.AdjustCapacity(ctx, eventID, delta); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateAvailability(ctx, eventID); err != nil {
			s.logger.Warn("Failed to invalidate availability cache",
				zap.Int64("event_id", eventID),
				zap.Error(err))
		}
	}

	s.logger.Info("Event capacity adjusted",
		zap.Int64("event_id", eventID),
		zap.Int("delta", delta))

	return s.repo.GetEventByID(ctx, eventID)
}
