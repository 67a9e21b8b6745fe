package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/db"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/repo/memory"
	mongorepo "github.com/geocoder89/accounthub/internal/repo/mongo"
	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/geocoder89/accounthub/internal/verification"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type userStore interface {
	handlers.UserStore
	verification.Store
}

type adminStore interface {
	handlers.AdminReader
	db.AdminSeeder
}

type stores struct {
	users    userStore
	admins   adminStore
	contacts handlers.ContactStore
	checks   map[string]handlers.Check
	close    func()
}

// openStores connects the backend chosen by STORE_BACKEND.
func openStores(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (*stores, error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL(), cfg.DB.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}

		if cfg.DB.AutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			log.Info("migrations applied")
		}

		return &stores{
			users:    postgres.NewUsersRepo(pool, prom),
			admins:   postgres.NewAdminsRepo(pool, prom),
			contacts: postgres.NewContactsRepo(pool, prom),
			checks: map[string]handlers.Check{
				"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
			},
			close: pool.Close,
		}, nil

	case config.StoreMongo:
		client, database, err := mongorepo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}

		if err := mongorepo.EnsureIndexes(ctx, database); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}

		return &stores{
			users:    mongorepo.NewUsersRepo(database, prom),
			admins:   mongorepo.NewAdminsRepo(database, prom),
			contacts: mongorepo.NewContactsRepo(database, prom),
			checks: map[string]handlers.Check{
				"mongo": func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
			},
			close: func() { _ = client.Disconnect(context.Background()) },
		}, nil

	default:
		log.Warn("using in-memory store; data is lost on restart")

		return &stores{
			users:    memory.NewUsersRepo(),
			admins:   memory.NewAdminsRepo(),
			contacts: memory.NewContactsRepo(),
			checks:   map[string]handlers.Check{},
			close:    func() {},
		}, nil
	}
}
