package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/datastore/db"
)

// ErrEventNotFound is returned when an outbox row is missing or already sent.
var ErrEventNotFound = errors.New("outbox event not found or already sent")

// Querier defines what the repository needs from the generated queries.
type Querier interface {
	FetchUnsentOutbox(ctx context.Context, limit int32) ([]db.ChangeOutbox, error)
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (db.ChangeOutbox, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	IncrementOutboxAttempts(ctx context.Context, id uuid.UUID) error
	CountPendingOutbox(ctx context.Context) (int64, error)
}

type Repository struct {
	queries Querier
}

func NewRepository(queries Querier) *Repository {
	return &Repository{
		queries: queries,
	}
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.queries.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	events := make([]OutboxEvent, len(rows))
	for i, row := range rows {
		events[i] = dbOutboxToEvent(row)
	}
	return events, nil
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row, err := r.queries.FetchOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	event := dbOutboxToEvent(row)
	return &event, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.MarkOutboxSent(ctx, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.IncrementOutboxAttempts(ctx, id); err != nil {
		return fmt.Errorf("failed to increment outbox attempts: %w", err)
	}
	return nil
}

func (r *Repository) CountPending(ctx context.Context) (int, error) {
	count, err := r.queries.CountPendingOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return int(count), nil
}

func dbOutboxToEvent(row db.ChangeOutbox) OutboxEvent {
	return OutboxEvent{
		ID:        row.ID,
		RoomID:    row.RoomID,
		EventType: row.EventType,
		Payload:   row.Payload,
		CreatedAt: row.CreatedAt.UTC(),
		Attempts:  row.Attempts,
	}
}
