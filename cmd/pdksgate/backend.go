package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pdkslab/pdksgate/internal/config"
	"github.com/pdkslab/pdksgate/internal/db"
	"github.com/pdkslab/pdksgate/internal/gate/service"
	"github.com/pdkslab/pdksgate/internal/gate/store"
	"github.com/pdkslab/pdksgate/internal/gate/store/memory"
	"github.com/pdkslab/pdksgate/internal/gate/store/postgres"
	"github.com/pdkslab/pdksgate/internal/gate/store/sqlite"
	"github.com/pdkslab/pdksgate/internal/gate/types"
)

// backend is an opened store plus the teardown it needs.
type backend struct {
	stores service.Stores
	health store.Pinger
	close  func()
}

func openBackend(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*backend, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, db.SQLiteConfig{Path: cfg.SQLitePath})
		if err != nil {
			return nil, err
		}
		if cfg.Env == "dev" {
			if err := db.SeedDev(ctx, conn); err != nil {
				_ = conn.Close()
				return nil, err
			}
			log.Info("dev seed applied")
		}
		writer := db.NewWorker(conn)
		devices := sqlite.NewDeviceStore(conn)
		return &backend{
			stores: service.Stores{
				Identities: sqlite.NewIdentityStore(conn),
				Rules:      sqlite.NewRuleStore(conn),
				Devices:    devices,
				Events:     sqlite.NewAccessEventStore(conn, writer),
			},
			health: devices,
			close: func() {
				writer.Close()
				closeDB(conn, log)
			},
		}, nil

	case "postgres":
		conn, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		st := postgres.New(conn)
		return &backend{
			stores: service.Stores{Identities: st, Rules: st, Devices: st, Events: st},
			health: st,
			close:  func() { closeDB(conn, log) },
		}, nil

	case "memory":
		stores := service.Stores{
			Identities: memory.NewIdentityStore(),
			Rules:      memory.NewRuleStore(),
			Devices:    memory.NewDeviceStore(),
			Events:     memory.NewAccessEventStore(),
		}
		if cfg.Env == "dev" {
			stores = demoMemoryStores()
			log.Info("in-memory demo data loaded")
		}
		return &backend{stores: stores, close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func openPostgres(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	conn, err := db.OpenPostgres(ctx, db.PostgresConfig{
		URL:             cfg.Postgres.URL,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn, db.Postgres); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// demoMemoryStores mirrors the sqlite dev seed.
func demoMemoryStores() service.Stores {
	return service.Stores{
		Identities: memory.NewIdentityStore(types.Employee{
			ID:               "emp-demo",
			CardNumber:       "0001234567",
			FirstName:        "Demo",
			LastName:         "User",
			DepartmentID:     "dept-ops",
			ZoneID:           "zone-lobby",
			AccessPermission: true,
			Active:           true,
		}),
		Rules: memory.NewRuleStore(types.AccessRule{
			ID:         "rule-demo",
			EmployeeID: "emp-demo",
			ZoneID:     "zone-lobby",
			Days:       []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
			StartTime:  "07:00",
			EndTime:    "20:00",
			Active:     true,
		}),
		Devices: memory.NewDeviceStore(types.Device{
			ID:       "dev-main",
			Serial:   "SN-0001",
			Name:     "Main Entrance",
			Location: "Lobby",
			ZoneID:   "zone-lobby",
			DoorID:   "door-main",
			Dialect:  "relay",
		}),
		Events: memory.NewAccessEventStore(),
	}
}

func closeDB(conn *sql.DB, log logrus.FieldLogger) {
	if err := conn.Close(); err != nil {
		log.WithError(err).Warn("close database")
	}
}
