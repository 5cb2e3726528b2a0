package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/pdkslab/pdksgate/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations for the configured store and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			switch a.cfg.StoreBackend {
			case "sqlite":
				// OpenSQLite migrates on open.
				conn, err := db.OpenSQLite(ctx, db.SQLiteConfig{Path: a.cfg.SQLitePath})
				if err != nil {
					return err
				}
				closeDB(conn, a.log)
			case "postgres":
				conn, err := openPostgres(ctx, a.cfg)
				if err != nil {
					return err
				}
				closeDB(conn, a.log)
			default:
				return errors.New("the memory backend has no schema to migrate")
			}
			a.log.WithField("backend", a.cfg.StoreBackend).Info("migrations applied")
			return nil
		},
	}
}
