package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const upsertVote = `-- name: UpsertVote :execrows
INSERT INTO food_votes (room_id, user_id, suggestion_id, reaction, updated_at)
SELECT $1::uuid, $2::text, $3::uuid, $4::text, $5::timestamptz
WHERE EXISTS (SELECT 1 FROM rooms r WHERE r.id = $1 AND r.is_active AND r.expires_at > now())
ON CONFLICT ON CONSTRAINT food_votes_room_user_key DO UPDATE
SET suggestion_id = EXCLUDED.suggestion_id,
    reaction      = EXCLUDED.reaction,
    updated_at    = EXCLUDED.updated_at`

type UpsertVoteParams struct {
	RoomID       uuid.UUID `json:"room_id"`
	UserID       string    `json:"user_id"`
	SuggestionID uuid.UUID `json:"suggestion_id"`
	Reaction     string    `json:"reaction"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UpsertVote affects no rows when the room is no longer open.
func (q *Queries) UpsertVote(ctx context.Context, arg UpsertVoteParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, upsertVote,
		arg.RoomID,
		arg.UserID,
		arg.SuggestionID,
		arg.Reaction,
		arg.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteVote = `-- name: DeleteVote :exec
DELETE FROM food_votes
WHERE room_id = $1
  AND user_id = $2`

type DeleteVoteParams struct {
	RoomID uuid.UUID `json:"room_id"`
	UserID string    `json:"user_id"`
}

func (q *Queries) DeleteVote(ctx context.Context, arg DeleteVoteParams) error {
	_, err := q.db.ExecContext(ctx, deleteVote, arg.RoomID, arg.UserID)
	return err
}

const listVotes = `-- name: ListVotes :many
SELECT room_id, user_id, suggestion_id, reaction, updated_at
FROM food_votes
WHERE room_id = $1
ORDER BY updated_at, user_id`

func (q *Queries) ListVotes(ctx context.Context, roomID uuid.UUID) ([]FoodVote, error) {
	rows, err := q.db.QueryContext(ctx, listVotes, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FoodVote
	for rows.Next() {
		var i FoodVote
		if err := rows.Scan(
			&i.RoomID,
			&i.UserID,
			&i.SuggestionID,
			&i.Reaction,
			&i.UpdatedAt,
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
