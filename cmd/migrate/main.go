package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/seanankenbruck/warehouse-ai/internal/app"
	"github.com/seanankenbruck/warehouse-ai/internal/config"
	"github.com/seanankenbruck/warehouse-ai/internal/database"
)

func main() {
	path := flag.String("path", "", "migrations directory (default: migrations built into the binary)")
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.NewDefaultLoader().Load(context.Background())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	db := cfg.Snapshot.Database
	databaseURL := app.MigrationURL(cfg)

	fmt.Println("=== Index snapshot migrations ===")
	fmt.Printf("Connecting to database: %s@%s:%s/%s\n", db.Username, db.Host, db.Port, db.Database)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.VerifyDatabase(ctx, databaseURL); err != nil {
		log.Fatalf("Database connectivity failed: %v", err)
	}
	fmt.Println("✓ Database connectivity verified")

	migrationConfig := database.MigrationConfig{
		DatabaseURL:    databaseURL,
		MigrationsPath: *path,
	}

	if *down > 0 {
		status, err := database.RollbackMigrations(migrationConfig, *down)
		if err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		fmt.Printf("✓ Rolled back %d migration(s), now at version %d\n", *down, status.Version)
		return
	}

	status, err := database.RunMigrations(migrationConfig)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	if !status.Changed {
		fmt.Printf("✓ Schema already at version %d\n", status.Version)
		return
	}
	if status.Dirty {
		log.Fatalf("Schema left dirty at version %d; fix it and force the version", status.Version)
	}
	fmt.Printf("✓ Migrated to version %d\n", status.Version)
}
