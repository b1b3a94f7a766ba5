package main

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/mcdev12/tabletalk/go/internal/dbconfig"
)

func setupDatabase(ctx context.Context) (*sql.DB, error) {
	return dbconfig.Open(ctx, "postgres", dbconfig.NewConfigFromEnv())
}
