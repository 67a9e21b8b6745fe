package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/db"
	"github.com/geocoder89/accounthub/internal/observability"
)

// migrate applies the embedded Postgres migrations and exits.
func main() {
	status := flag.Bool("status", false, "print the current schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)

	ctx, cancel := config.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL(), 2)
	if err != nil {
		log.Error("connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if !*status {
		if err := db.Migrate(ctx, pool); err != nil {
			log.Error("migrate", "err", err)
			os.Exit(1)
		}
	}

	version, err := db.MigrationVersion(ctx, pool)
	if err != nil {
		log.Error("read version", "err", err)
		os.Exit(1)
	}

	log.Info("schema version", "version", version)
}
