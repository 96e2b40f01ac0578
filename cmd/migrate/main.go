package main

import (
	"QuoteLedger/internal/observability"
	"QuoteLedger/internal/persistence"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down>")
		fmt.Println("  up   - apply all pending migrations")
		fmt.Println("  down - roll back the last migration")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  REPLAY_POSTGRES_URL - Postgres connection string")
		fmt.Println("  MIGRATIONS_DIR      - read migrations from disk instead of the embedded set")
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "WARN: load .env: %v\n", err)
	}

	logger := observability.NewLogger("migrate")

	pgURL := os.Getenv("REPLAY_POSTGRES_URL")
	if pgURL == "" {
		pgURL = "postgres://localhost:5432/quoteledger?sslmode=disable"
	}

	var migrations fs.FS = persistence.EmbeddedMigrations()
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		migrations = os.DirFS(dir)
	}

	db, err := sql.Open("postgres", pgURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	migrator := persistence.NewMigrator(db, migrations)

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
		logger.Info().Msg("all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		logger.Info().Msg("last migration rolled back")

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up' or 'down')\n", os.Args[1])
		os.Exit(1)
	}
}
