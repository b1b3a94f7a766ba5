package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const insertParticipant = `-- name: InsertParticipant :exec
INSERT INTO room_participants (room_id, user_id, name, avatar_url, is_host, joined_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (room_id, user_id) DO NOTHING`

type InsertParticipantParams struct {
	RoomID    uuid.UUID      `json:"room_id"`
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	AvatarUrl sql.NullString `json:"avatar_url"`
	IsHost    bool           `json:"is_host"`
	JoinedAt  time.Time      `json:"joined_at"`
}

func (q *Queries) InsertParticipant(ctx context.Context, arg InsertParticipantParams) error {
	_, err := q.db.ExecContext(ctx, insertParticipant,
		arg.RoomID,
		arg.UserID,
		arg.Name,
		arg.AvatarUrl,
		arg.IsHost,
		arg.JoinedAt,
	)
	return err
}

const listParticipants = `-- name: ListParticipants :many
SELECT room_id, user_id, name, avatar_url, is_host, joined_at
FROM room_participants
WHERE room_id = $1
ORDER BY joined_at, user_id`

func (q *Queries) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]RoomParticipant, error) {
	rows, err := q.db.QueryContext(ctx, listParticipants, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RoomParticipant
	for rows.Next() {
		var i RoomParticipant
		if err := rows.Scan(
			&i.RoomID,
			&i.UserID,
			&i.Name,
			&i.AvatarUrl,
			&i.IsHost,
			&i.JoinedAt,
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

const getProfile = `-- name: GetProfile :one
SELECT user_id, name, avatar_url FROM profiles WHERE user_id = $1`

func (q *Queries) GetProfile(ctx context.Context, userID string) (Profile, error) {
	row := q.db.QueryRowContext(ctx, getProfile, userID)
	var i Profile
	err := row.Scan(&i.UserID, &i.Name, &i.AvatarUrl)
	return i, err
}

const upsertProfile = `-- name: UpsertProfile :exec
INSERT INTO profiles (user_id, name, avatar_url)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE
SET name = EXCLUDED.name,
    avatar_url = EXCLUDED.avatar_url`

type UpsertProfileParams struct {
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	AvatarUrl sql.NullString `json:"avatar_url"`
}

func (q *Queries) UpsertProfile(ctx context.Context, arg UpsertProfileParams) error {
	_, err := q.db.ExecContext(ctx, upsertProfile, arg.UserID, arg.Name, arg.AvatarUrl)
	return err
}
