package main

import (
	"context"
	"flag"
	"log"

	"github.com/serkee5559/coin-portal/pkg/config"
	"github.com/serkee5559/coin-portal/pkg/migration"
	"github.com/serkee5559/coin-portal/pkg/postgres"
)

func main() {
	var (
		direction = flag.String("direction", "up", "Migration direction: up or down")
		steps     = flag.Int("steps", 0, "Number of steps to migrate (0 = all)")
		dir       = flag.String("dir", "internal/infrastructure/postgres/migrations", "Migration files directory")
	)
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL client: %v", err)
	}
	defer pgClient.Close()

	runner := migration.NewRunner(ctx, pgClient, migration.Config{
		MigrationDir: *dir,
		Schema:       "public",
		TableName:    "schema_migrations",
	})

	if err := runner.EnsureMigrationTable(); err != nil {
		log.Fatalf("Failed to create migration table: %v", err)
	}

	switch *direction {
	case "up":
		if err := runner.MigrateUp(*steps); err != nil {
			log.Fatalf("Failed to migrate up: %v", err)
		}
	case "down":
		if err := runner.MigrateDown(*steps); err != nil {
			log.Fatalf("Failed to migrate down: %v", err)
		}
	default:
		log.Fatalf("Invalid direction: %s. Use 'up' or 'down'", *direction)
	}

	log.Printf("Migration %s completed successfully", *direction)
}
