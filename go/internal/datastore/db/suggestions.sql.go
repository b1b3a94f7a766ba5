package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const createSuggestion = `-- name: CreateSuggestion :one
INSERT INTO food_suggestions (id, room_id, name, emoji, description, created_by, created_at)
SELECT $1::uuid, $2::uuid, $3::text, $4::text, $5::text, $6::text, $7::timestamptz
WHERE EXISTS (SELECT 1 FROM rooms r WHERE r.id = $2 AND r.is_active AND r.expires_at > now())
RETURNING id, room_id, name, emoji, description, created_by, created_at`

type CreateSuggestionParams struct {
	ID          uuid.UUID      `json:"id"`
	RoomID      uuid.UUID      `json:"room_id"`
	Name        string         `json:"name"`
	Emoji       string         `json:"emoji"`
	Description sql.NullString `json:"description"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CreateSuggestion returns sql.ErrNoRows when the room is no longer open.
func (q *Queries) CreateSuggestion(ctx context.Context, arg CreateSuggestionParams) (FoodSuggestion, error) {
	row := q.db.QueryRowContext(ctx, createSuggestion,
		arg.ID,
		arg.RoomID,
		arg.Name,
		arg.Emoji,
		arg.Description,
		arg.CreatedBy,
		arg.CreatedAt,
	)
	var i FoodSuggestion
	err := row.Scan(
		&i.ID,
		&i.RoomID,
		&i.Name,
		&i.Emoji,
		&i.Description,
		&i.CreatedBy,
		&i.CreatedAt,
	)
	return i, err
}

const listSuggestions = `-- name: ListSuggestions :many
SELECT id, room_id, name, emoji, description, created_by, created_at
FROM food_suggestions
WHERE room_id = $1
ORDER BY created_at, id`

func (q *Queries) ListSuggestions(ctx context.Context, roomID uuid.UUID) ([]FoodSuggestion, error) {
	rows, err := q.db.QueryContext(ctx, listSuggestions, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FoodSuggestion
	for rows.Next() {
		var i FoodSuggestion
		if err := rows.Scan(
			&i.ID,
			&i.RoomID,
			&i.Name,
			&i.Emoji,
			&i.Description,
			&i.CreatedBy,
			&i.CreatedAt,
		); err != nil {
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
