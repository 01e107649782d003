package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/leafsii/leafsii-farm/internal/config"
	"github.com/leafsii/leafsii-farm/internal/repository"
)

var flags = flag.NewFlagSet("migrate", flag.ExitOnError)

func main() {
	flags.Parse(os.Args[1:])
	args := flags.Args()

	if len(args) < 1 {
		log.Fatal("Usage: migrate COMMAND\n\nCommands:\n  up\n  down\n  status")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.PostgresDSN == "" {
		log.Fatal("FARM_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	db, err := repository.Open(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db, args[0]); err != nil {
		log.Fatalf("Migration %s failed: %v", args[0], err)
	}
}
