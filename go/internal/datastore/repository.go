// Package datastore is the Postgres implementation of the room data service.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tabletalk/go/internal/datastore/db"
	"github.com/mcdev12/tabletalk/go/internal/models"
	"github.com/mcdev12/tabletalk/go/internal/room"
	"github.com/mcdev12/tabletalk/go/internal/sqlutil"
)

const roomCodeConstraint = "rooms_code_key"

// Querier defines what the repository needs from the database layer
type Querier interface {
	CreateRoom(ctx context.Context, arg db.CreateRoomParams) (db.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (db.Room, error)
	GetRoomByCode(ctx context.Context, code string) (db.Room, error)
	CloseRoom(ctx context.Context, arg db.CloseRoomParams) (int64, error)
	FetchNextExpiry(ctx context.Context) (sql.NullTime, error)
	FetchRoomsDueForClose(ctx context.Context, arg db.FetchRoomsDueForCloseParams) ([]uuid.UUID, error)
	InsertParticipant(ctx context.Context, arg db.InsertParticipantParams) error
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]db.RoomParticipant, error)
	GetProfile(ctx context.Context, userID string) (db.Profile, error)
	CreateSuggestion(ctx context.Context, arg db.CreateSuggestionParams) (db.FoodSuggestion, error)
	ListSuggestions(ctx context.Context, roomID uuid.UUID) ([]db.FoodSuggestion, error)
	UpsertVote(ctx context.Context, arg db.UpsertVoteParams) (int64, error)
	DeleteVote(ctx context.Context, arg db.DeleteVoteParams) error
	ListVotes(ctx context.Context, roomID uuid.UUID) ([]db.FoodVote, error)
	CreateMessage(ctx context.Context, arg db.CreateMessageParams) (db.Message, error)
	ListRecentMessages(ctx context.Context, arg db.ListRecentMessagesParams) ([]db.Message, error)
}

// Repository implements room data access on Postgres
type Repository struct {
	conn    *sql.DB
	queries Querier
}

// NewRepository creates a repository over an open database handle
func NewRepository(conn *sql.DB) *Repository {
	return &Repository{
		conn:    conn,
		queries: db.New(conn),
	}
}

// NewRepositoryWithQuerier is used by tests that stub the query layer.
// Operations that need a transaction are unavailable without a connection.
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{queries: q}
}

// CreateRoom inserts the room and its host in one transaction.
func (r *Repository) CreateRoom(ctx context.Context, req room.CreateRoomParams) (*models.Room, error) {
	params := db.CreateRoomParams{
		ID:        uuid.New(),
		Code:      req.Code,
		Name:      req.Name,
		HostID:    req.Host.UserID,
		FoodMode:  string(req.FoodMode),
		CreatedAt: req.CreatedAt,
		ExpiresAt: req.ExpiresAt,
	}
	host := db.InsertParticipantParams{
		UserID:    req.Host.UserID,
		Name:      req.Host.Name,
		AvatarUrl: sqlutil.ToNullString(req.Host.AvatarURL),
		IsHost:    true,
		JoinedAt:  req.Host.JoinedAt,
	}

	var created db.Room
	insert := func(q Querier) error {
		var err error
		created, err = q.CreateRoom(ctx, params)
		if err != nil {
			return err
		}
		host.RoomID = created.ID
		return q.InsertParticipant(ctx, host)
	}

	var err error
	if r.conn == nil {
		err = insert(r.queries)
	} else {
		err = sqlutil.Run(ctx, r.conn, func(tx *sql.Tx) *db.Queries { return db.New(tx) }, func(q *db.Queries) error {
			return insert(q)
		})
	}
	if err != nil {
		if sqlutil.IsUniqueViolation(err, roomCodeConstraint) {
			return nil, fmt.Errorf("%w: %s", room.ErrDuplicateCode, req.Code)
		}
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return dbRoomToModel(created), nil
}

// GetRoom retrieves a room by ID
func (r *Repository) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	row, err := r.queries.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", room.ErrRoomNotFound, id)
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return dbRoomToModel(row), nil
}

// GetRoomByCode retrieves a room by its join code
func (r *Repository) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	row, err := r.queries.GetRoomByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", room.ErrRoomNotFound, code)
		}
		return nil, fmt.Errorf("failed to get room by code: %w", err)
	}
	return dbRoomToModel(row), nil
}

// AddParticipant records a participant; rejoining is a no-op. A blank name is
// filled from the stored profile when there is one.
func (r *Repository) AddParticipant(ctx context.Context, p models.Participant) error {
	if p.Name == "" {
		if profile, err := r.queries.GetProfile(ctx, p.UserID); err == nil {
			p.Name = profile.Name
			if p.AvatarURL == "" {
				p.AvatarURL = sqlutil.FromSqlString(profile.AvatarUrl, "")
			}
		}
	}
	err := r.queries.InsertParticipant(ctx, db.InsertParticipantParams{
		RoomID:    p.RoomID,
		UserID:    p.UserID,
		Name:      p.Name,
		AvatarUrl: sqlutil.ToNullString(p.AvatarURL),
		IsHost:    p.IsHost,
		JoinedAt:  p.JoinedAt,
	})
	if err != nil {
		if sqlutil.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", room.ErrRoomNotFound, p.RoomID)
		}
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// ListParticipants returns the room roster in join order
func (r *Repository) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.queries.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	out := make([]models.Participant, len(rows))
	for i, row := range rows {
		out[i] = models.Participant{
			RoomID:    row.RoomID,
			UserID:    row.UserID,
			Name:      row.Name,
			AvatarURL: sqlutil.FromSqlString(row.AvatarUrl, ""),
			IsHost:    row.IsHost,
			JoinedAt:  row.JoinedAt.UTC(),
		}
	}
	return out, nil
}

// GetProfile returns the stored display identity of a user
func (r *Repository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	row, err := r.queries.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &models.Profile{
		UserID:    row.UserID,
		Name:      row.Name,
		AvatarURL: sqlutil.FromSqlString(row.AvatarUrl, ""),
	}, nil
}

// ListSuggestions returns a room's suggestions in creation order
func (r *Repository) ListSuggestions(ctx context.Context, roomID uuid.UUID) ([]models.Suggestion, error) {
	rows, err := r.queries.ListSuggestions(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	out := make([]models.Suggestion, len(rows))
	for i, row := range rows {
		out[i] = dbSuggestionToModel(row)
	}
	return out, nil
}

// CreateSuggestion stores a suggestion with its client-generated ID
func (r *Repository) CreateSuggestion(ctx context.Context, s models.Suggestion) (*models.Suggestion, error) {
	row, err := r.queries.CreateSuggestion(ctx, db.CreateSuggestionParams{
		ID:          s.ID,
		RoomID:      s.RoomID,
		Name:        s.Name,
		Emoji:       s.Emoji,
		Description: sqlutil.ToSqlString(s.Description),
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, room.ErrRoomInactive
		}
		return nil, fmt.Errorf("failed to create suggestion: %w", err)
	}
	out := dbSuggestionToModel(row)
	return &out, nil
}

// ListVotes returns every vote in a room
func (r *Repository) ListVotes(ctx context.Context, roomID uuid.UUID) ([]models.Vote, error) {
	rows, err := r.queries.ListVotes(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	out := make([]models.Vote, len(rows))
	for i, row := range rows {
		out[i] = models.Vote{
			RoomID:       row.RoomID,
			UserID:       row.UserID,
			SuggestionID: row.SuggestionID,
			Reaction:     models.Reaction(row.Reaction),
			UpdatedAt:    row.UpdatedAt.UTC(),
		}
	}
	return out, nil
}

// UpsertVote sets a user's single vote in a room
func (r *Repository) UpsertVote(ctx context.Context, v models.Vote) error {
	n, err := r.queries.UpsertVote(ctx, db.UpsertVoteParams{
		RoomID:       v.RoomID,
		UserID:       v.UserID,
		SuggestionID: v.SuggestionID,
		Reaction:     string(v.Reaction),
		UpdatedAt:    v.UpdatedAt,
	})
	if err != nil {
		if sqlutil.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", room.ErrUnknownSuggestion, v.SuggestionID)
		}
		return fmt.Errorf("failed to upsert vote: %w", err)
	}
	if n == 0 {
		return room.ErrRoomInactive
	}
	return nil
}

// DeleteVote removes whatever vote the user holds in the room
func (r *Repository) DeleteVote(ctx context.Context, roomID uuid.UUID, userID string) error {
	err := r.queries.DeleteVote(ctx, db.DeleteVoteParams{
		RoomID: roomID,
		UserID: userID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete vote: %w", err)
	}
	return nil
}

// ListMessages returns the latest limit messages, oldest first
func (r *Repository) ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Message, error) {
	rows, err := r.queries.ListRecentMessages(ctx, db.ListRecentMessagesParams{
		RoomID: roomID,
		Limit:  int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	out := make([]models.Message, len(rows))
	for i, row := range rows {
		out[i] = dbMessageToModel(row)
	}
	return out, nil
}

// CreateMessage stores a chat message
func (r *Repository) CreateMessage(ctx context.Context, m models.Message) (*models.Message, error) {
	row, err := r.queries.CreateMessage(ctx, db.CreateMessageParams{
		ID:         m.ID,
		RoomID:     m.RoomID,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		Text:       m.Text,
		CreatedAt:  m.Timestamp,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, room.ErrRoomInactive
		}
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	out := dbMessageToModel(row)
	return &out, nil
}

// CloseRoom marks a room inactive and stores its outcome. Closing an already
// closed room is a no-op, so only the first result is kept.
func (r *Repository) CloseRoom(ctx context.Context, roomID uuid.UUID, result []byte) error {
	_, err := r.queries.CloseRoom(ctx, db.CloseRoomParams{
		ID:     roomID,
		Result: sqlutil.ToNullRawMessage(result),
	})
	if err != nil {
		return fmt.Errorf("failed to close room: %w", err)
	}
	return nil
}

// FetchNextExpiry returns the earliest deadline among active rooms, or nil.
func (r *Repository) FetchNextExpiry(ctx context.Context) (*time.Time, error) {
	next, err := r.queries.FetchNextExpiry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch next expiry: %w", err)
	}
	return sqlutil.FromSqlTime(next), nil
}

// FetchRoomsDueForClose returns active rooms whose deadline is at or before now.
func (r *Repository) FetchRoomsDueForClose(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	ids, err := r.queries.FetchRoomsDueForClose(ctx, db.FetchRoomsDueForCloseParams{
		Now:   now,
		Limit: int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rooms due for close: %w", err)
	}
	return ids, nil
}

func dbRoomToModel(row db.Room) *models.Room {
	return &models.Room{
		ID:        row.ID,
		Code:      row.Code,
		Name:      row.Name,
		HostID:    row.HostID,
		FoodMode:  models.FoodMode(row.FoodMode),
		CreatedAt: row.CreatedAt.UTC(),
		ExpiresAt: row.ExpiresAt.UTC(),
		IsActive:  row.IsActive,
		ClosedAt:  sqlutil.FromSqlTime(row.ClosedAt),
		Result:    sqlutil.FromNullRawMessage(row.Result),
	}
}

func dbSuggestionToModel(row db.FoodSuggestion) models.Suggestion {
	return models.Suggestion{
		ID:          row.ID,
		RoomID:      row.RoomID,
		Name:        row.Name,
		Emoji:       row.Emoji,
		Description: sqlutil.FromSqlStringPtr(row.Description),
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

func dbMessageToModel(row db.Message) models.Message {
	return models.Message{
		ID:         row.ID,
		RoomID:     row.RoomID,
		AuthorID:   row.AuthorID,
		AuthorName: row.AuthorName,
		Text:       row.Text,
		Timestamp:  row.CreatedAt.UTC(),
	}
}
