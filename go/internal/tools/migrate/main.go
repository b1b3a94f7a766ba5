package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/mcdev12/tabletalk/go/internal/datastore/migrations"
	"github.com/mcdev12/tabletalk/go/internal/dbconfig"
)

const usage = `usage: migrate [up|up-by-one|down|redo|reset|status|version] [args]`

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	command := "up"
	args := flag.Args()
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	cfg := dbconfig.NewConfigFromEnv()
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set dialect: %v\n", err)
		os.Exit(1)
	}

	if err := goose.RunContext(context.Background(), command, db, ".", args...); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", command, err)
		os.Exit(1)
	}

	fmt.Printf("Migrations %s complete on %s:%d/%s\n", command, cfg.Host, cfg.Port, cfg.Database)
}
