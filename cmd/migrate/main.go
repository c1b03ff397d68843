package main

// Run database migrations:
//   go run ./cmd/migrate
// Also seed the locations table with the built-in city list:
//   go run ./cmd/migrate -seed-locations

import (
	"context"
	"flag"
	"log"
	"os"

	"schedule-backend/internal/locations"
	"schedule-backend/internal/shared/config"
	"schedule-backend/internal/shared/storage/db"
	"schedule-backend/internal/shared/telemetry"
)

func main() {
	seed := flag.Bool("seed-locations", false, "upsert the built-in city list into the locations table")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := telemetry.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer telemetry.Sync()
	ctx := context.Background()

	sqlDB, err := db.Connect(ctx, cfg.Database.URL, db.DefaultMigrateOptions())
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		log.Printf("failed to run migrations: %v", err)
		os.Exit(1)
	}
	telemetry.Info("migrate.done", nil)

	if *seed {
		n, err := (&locations.PGRegistry{DB: sqlDB}).SeedKnownCities(ctx)
		if err != nil {
			log.Printf("failed to seed locations: %v", err)
			os.Exit(1)
		}
		telemetry.Info("migrate.seeded_locations", map[string]any{"count": n})
	}
}
