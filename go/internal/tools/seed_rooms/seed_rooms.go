package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/tabletalk/go/internal/dbconfig"
	"github.com/mcdev12/tabletalk/go/internal/models"
)

type Profile struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type Suggestion struct {
	Name        string `json:"name"`
	Emoji       string `json:"emoji"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
}

// DemoRoom is restarted on every seed so its countdown begins now
type DemoRoom struct {
	Code            string       `json:"code"`
	Name            string       `json:"name"`
	HostID          string       `json:"host_id"`
	FoodMode        string       `json:"food_mode"`
	DurationMinutes int          `json:"duration_minutes"`
	Guests          []string     `json:"guests"`
	Suggestions     []Suggestion `json:"suggestions"`
}

type Seed struct {
	Profiles []Profile  `json:"profiles"`
	Rooms    []DemoRoom `json:"rooms"`
}

func main() {
	// 1) Load the JSON snapshot
	path := "go/internal/assets/demo_rooms.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert profiles
	names := make(map[string]Profile, len(seed.Profiles))
	for _, p := range seed.Profiles {
		names[p.UserID] = p
		if _, err := pool.Exec(ctx, `
            INSERT INTO profiles (user_id, name, avatar_url)
            VALUES ($1, $2, NULLIF($3, ''))
            ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name, avatar_url = EXCLUDED.avatar_url
        `, p.UserID, p.Name, p.AvatarURL); err != nil {
			fmt.Fprintf(os.Stderr, "error upserting profile %s: %v\n", p.UserID, err)
			os.Exit(1)
		}
	}

	// 4) Recreate each room in its own transaction
	var created, errs int
	for _, r := range seed.Rooms {
		if err := seedRoom(ctx, pool, r, names); err != nil {
			fmt.Fprintf(os.Stderr, "error seeding room %s: %v\n", r.Code, err)
			errs++
			continue
		}
		created++
	}

	// 5) Print summary
	fmt.Printf(
		"Rooms seed complete: %d profiles, %d rooms created, %d errors\n",
		len(seed.Profiles), created, errs,
	)
}

func seedRoom(ctx context.Context, pool *pgxpool.Pool, r DemoRoom, names map[string]Profile) error {
	mode, err := models.ParseFoodMode(r.FoodMode)
	if err != nil {
		return err
	}
	if r.DurationMinutes <= 0 {
		return fmt.Errorf("room %s has no duration", r.Code)
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM rooms WHERE code = $1`, r.Code); err != nil {
			return fmt.Errorf("failed to delete previous room: %w", err)
		}

		now := time.Now().UTC()
		roomID := uuid.New()
		if _, err := tx.Exec(ctx, `
            INSERT INTO rooms (id, code, name, host_id, food_mode, created_at, expires_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, roomID, r.Code, r.Name, r.HostID, string(mode), now, now.Add(time.Duration(r.DurationMinutes)*time.Minute)); err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}

		members := append([]string{r.HostID}, r.Guests...)
		for _, userID := range members {
			p := names[userID]
			name := p.Name
			if name == "" {
				name = userID
			}
			if _, err := tx.Exec(ctx, `
                INSERT INTO room_participants (room_id, user_id, name, avatar_url, is_host, joined_at)
                VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
            `, roomID, userID, name, p.AvatarURL, userID == r.HostID, now); err != nil {
				return fmt.Errorf("failed to insert participant %s: %w", userID, err)
			}
		}

		for i, s := range r.Suggestions {
			if _, err := tx.Exec(ctx, `
                INSERT INTO food_suggestions (id, room_id, name, emoji, description, created_by, created_at)
                VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
            `, uuid.New(), roomID, s.Name, s.Emoji, s.Description, s.CreatedBy, now.Add(time.Duration(i)*time.Millisecond)); err != nil {
				return fmt.Errorf("failed to insert suggestion %s: %w", s.Name, err)
			}
		}
		return nil
	})
}
