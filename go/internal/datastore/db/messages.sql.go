package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const createMessage = `-- name: CreateMessage :one
INSERT INTO messages (id, room_id, author_id, author_name, text, created_at)
SELECT $1::uuid, $2::uuid, $3::text, $4::text, $5::text, $6::timestamptz
WHERE EXISTS (SELECT 1 FROM rooms r WHERE r.id = $2 AND r.is_active AND r.expires_at > now())
RETURNING id, room_id, author_id, author_name, text, created_at`

type CreateMessageParams struct {
	ID         uuid.UUID `json:"id"`
	RoomID     uuid.UUID `json:"room_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateMessage returns sql.ErrNoRows when the room is no longer open.
func (q *Queries) CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error) {
	row := q.db.QueryRowContext(ctx, createMessage,
		arg.ID,
		arg.RoomID,
		arg.AuthorID,
		arg.AuthorName,
		arg.Text,
		arg.CreatedAt,
	)
	var i Message
	err := row.Scan(
		&i.ID,
		&i.RoomID,
		&i.AuthorID,
		&i.AuthorName,
		&i.Text,
		&i.CreatedAt,
	)
	return i, err
}

const listRecentMessages = `-- name: ListRecentMessages :many
SELECT id, room_id, author_id, author_name, text, created_at
FROM (
    SELECT id, room_id, author_id, author_name, text, created_at
    FROM messages
    WHERE room_id = $1
    ORDER BY created_at DESC, id DESC
    LIMIT $2
) recent
ORDER BY created_at, id`

type ListRecentMessagesParams struct {
	RoomID uuid.UUID `json:"room_id"`
	Limit  int32     `json:"limit"`
}

func (q *Queries) ListRecentMessages(ctx context.Context, arg ListRecentMessagesParams) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx, listRecentMessages, arg.RoomID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Message
	for rows.Next() {
		var i Message
		if err := rows.Scan(
			&i.ID,
			&i.RoomID,
			&i.AuthorID,
			&i.AuthorName,
			&i.Text,
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
