package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const roomColumns = `id, code, name, host_id, food_mode, created_at, expires_at, is_active, closed_at, result`

func scanRoom(row interface{ Scan(...interface{}) error }) (Room, error) {
	var i Room
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.Name,
		&i.HostID,
		&i.FoodMode,
		&i.CreatedAt,
		&i.ExpiresAt,
		&i.IsActive,
		&i.ClosedAt,
		&i.Result,
	)
	return i, err
}

const createRoom = `-- name: CreateRoom :one
INSERT INTO rooms (id, code, name, host_id, food_mode, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + roomColumns

type CreateRoomParams struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	HostID    string    `json:"host_id"`
	FoodMode  string    `json:"food_mode"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (q *Queries) CreateRoom(ctx context.Context, arg CreateRoomParams) (Room, error) {
	row := q.db.QueryRowContext(ctx, createRoom,
		arg.ID,
		arg.Code,
		arg.Name,
		arg.HostID,
		arg.FoodMode,
		arg.CreatedAt,
		arg.ExpiresAt,
	)
	return scanRoom(row)
}

const getRoom = `-- name: GetRoom :one
SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`

func (q *Queries) GetRoom(ctx context.Context, id uuid.UUID) (Room, error) {
	return scanRoom(q.db.QueryRowContext(ctx, getRoom, id))
}

const getRoomByCode = `-- name: GetRoomByCode :one
SELECT ` + roomColumns + ` FROM rooms WHERE code = $1`

func (q *Queries) GetRoomByCode(ctx context.Context, code string) (Room, error) {
	return scanRoom(q.db.QueryRowContext(ctx, getRoomByCode, code))
}

const closeRoom = `-- name: CloseRoom :execrows
UPDATE rooms
SET is_active = FALSE,
    closed_at = now(),
    result    = $2
WHERE id = $1
  AND is_active`

type CloseRoomParams struct {
	ID     uuid.UUID             `json:"id"`
	Result pqtype.NullRawMessage `json:"result"`
}

// CloseRoom only touches an active room, so the first close wins.
func (q *Queries) CloseRoom(ctx context.Context, arg CloseRoomParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, closeRoom, arg.ID, arg.Result)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const fetchNextExpiry = `-- name: FetchNextExpiry :one
SELECT min(expires_at)::timestamptz FROM rooms WHERE is_active`

func (q *Queries) FetchNextExpiry(ctx context.Context) (sql.NullTime, error) {
	row := q.db.QueryRowContext(ctx, fetchNextExpiry)
	var next sql.NullTime
	err := row.Scan(&next)
	return next, err
}

const fetchRoomsDueForClose = `-- name: FetchRoomsDueForClose :many
SELECT id FROM rooms
WHERE is_active
  AND expires_at <= $1
ORDER BY expires_at
LIMIT $2`

type FetchRoomsDueForCloseParams struct {
	Now   time.Time `json:"now"`
	Limit int32     `json:"limit"`
}

func (q *Queries) FetchRoomsDueForClose(ctx context.Context, arg FetchRoomsDueForCloseParams) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx, fetchRoomsDueForClose, arg.Now, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
