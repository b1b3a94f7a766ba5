package db

import (
	"context"

	"github.com/google/uuid"
)

const outboxColumns = `id, room_id, event_type, payload, created_at, sent_at, attempts`

func scanOutbox(row interface{ Scan(...interface{}) error }) (ChangeOutbox, error) {
	var i ChangeOutbox
	err := row.Scan(
		&i.ID,
		&i.RoomID,
		&i.EventType,
		&i.Payload,
		&i.CreatedAt,
		&i.SentAt,
		&i.Attempts,
	)
	return i, err
}

const fetchUnsentOutbox = `-- name: FetchUnsentOutbox :many
SELECT ` + outboxColumns + `
FROM change_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1`

func (q *Queries) FetchUnsentOutbox(ctx context.Context, limit int32) ([]ChangeOutbox, error) {
	rows, err := q.db.QueryContext(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ChangeOutbox
	for rows.Next() {
		i, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const fetchOutboxByID = `-- name: FetchOutboxByID :one
SELECT ` + outboxColumns + `
FROM change_outbox
WHERE id = $1
  AND sent_at IS NULL`

func (q *Queries) FetchOutboxByID(ctx context.Context, id uuid.UUID) (ChangeOutbox, error) {
	return scanOutbox(q.db.QueryRowContext(ctx, fetchOutboxByID, id))
}

const markOutboxSent = `-- name: MarkOutboxSent :exec
UPDATE change_outbox SET sent_at = now() WHERE id = $1`

func (q *Queries) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, markOutboxSent, id)
	return err
}

const incrementOutboxAttempts = `-- name: IncrementOutboxAttempts :exec
UPDATE change_outbox SET attempts = attempts + 1 WHERE id = $1`

func (q *Queries) IncrementOutboxAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, incrementOutboxAttempts, id)
	return err
}

const countPendingOutbox = `-- name: CountPendingOutbox :one
SELECT COUNT(*) FROM change_outbox WHERE sent_at IS NULL`

func (q *Queries) CountPendingOutbox(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countPendingOutbox).Scan(&count)
	return count, err
}
