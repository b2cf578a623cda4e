package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticket-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

type txKey struct{}

// WithTx runs fn inside a transaction carried on the context. Nested calls
// join the ambient transaction. Every store method issued with the returned
// context runs on the same transaction, so FOR UPDATE row locks are held
// until commit or rollback.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}

// ext returns the transaction from the context when present, otherwise the
// pooled connection.
func (s *Store) ext(ctx context.Context) sqlx.ExtContext {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreateEvent inserts a new event. Available starts equal to total capacity.
func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (name, description, location, starts_at, total_tickets, available_tickets, ticket_price, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, s.ext(ctx), event, query,
		event.Name, event.Description, event.Location, event.StartsAt,
		event.TotalTickets, event.Available, event.TicketPrice, event.Currency)
}

// GetEventByID retrieves an event without locking it
func (s *Store) GetEventByID(ctx context.Context, id int64) (*models.Event, error) {
	var event models.Event
	err := sqlx.GetContext(ctx, s.ext(ctx), &event, "SELECT * FROM events WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &event, nil
}

// GetEventForUpdate locks the event row for the duration of the ambient
// transaction. This is the serialization point for all capacity mutations
// on the event.
func (s *Store) GetEventForUpdate(ctx context.Context, id int64) (*models.Event, error) {
	var event models.Event
	err := sqlx.GetContext(ctx, s.ext(ctx), &event,
		"SELECT * FROM events WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock event: %w", err)
	}
	return &event, nil
}

// ListEvents retrieves all events ordered by start time
func (s *Store) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := sqlx.SelectContext(ctx, s.ext(ctx), &events, "SELECT * FROM events ORDER BY starts_at")
	return events, err
}

// UpdateEventAvailable writes the availability counter. Only the ledger may
// call this, and only while holding the row lock from GetEventForUpdate.
func (s *Store) UpdateEventAvailable(ctx context.Context, eventID int64, available int) error {
	_, err := s.ext(ctx).ExecContext(ctx,
		"UPDATE events SET available_tickets = $1 WHERE id = $2",
		available, eventID)
	return err
}

// UpdateEventCapacity writes both counters during an administrative resize,
// under the same row lock as UpdateEventAvailable.
func (s *Store) UpdateEventCapacity(ctx context.Context, eventID int64, total, available int) error {
	_, err := s.ext(ctx).ExecContext(ctx,
		"UPDATE events SET total_tickets = $1, available_tickets = $2 WHERE id = $3",
		total, available, eventID)
	return err
}
