package event

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"goflare.io/creamery/driver"
	"goflare.io/creamery/models"
)

var ErrEventNotFound = errors.New("event not found")

var _ Repository = (*repository)(nil)

// Repository records the payment events that reached the service, so a
// redelivered event is handled once.
type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, event *models.Event) error
	GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Event, error)
	MarkAsProcessed(ctx context.Context, tx pgx.Tx, id string, updatedAt time.Time) error
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

// Create stores event unless a record with the same id already exists.
func (r *repository) Create(ctx context.Context, tx pgx.Tx, event *models.Event) error {
	_, err := driver.Use(r.conn, tx).Exec(ctx, `INSERT INTO processed_events (id, type, processed, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`,
		event.ID, string(event.Type), event.Processed, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create event", zap.String("event_id", event.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Event, error) {
	var (
		event     models.Event
		eventType string
	)
	err := driver.Use(r.conn, tx).QueryRow(ctx,
		`SELECT id, type, processed, created_at, updated_at FROM processed_events WHERE id = $1`, id).
		Scan(&event.ID, &eventType, &event.Processed, &event.CreatedAt, &event.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get event", zap.String("event_id", id), zap.Error(err))
		return nil, err
	}
	event.Type = stripe.EventType(eventType)
	return &event, nil
}

func (r *repository) MarkAsProcessed(ctx context.Context, tx pgx.Tx, id string, updatedAt time.Time) error {
	tag, err := driver.Use(r.conn, tx).Exec(ctx,
		`UPDATE processed_events SET processed = TRUE, updated_at = $2 WHERE id = $1`, id, updatedAt)
	if err != nil {
		r.logger.Error("Failed to mark event as processed", zap.String("event_id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}
