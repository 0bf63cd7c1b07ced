package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	sqliteRepo "github.com/sakif/product-catalog/internal/repository/sqlite"
	"github.com/sakif/product-catalog/internal/server"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}

		db, err := sqliteRepo.Connect(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		applied, err := db.Migrate(cmd.Context())
		if err != nil {
			return fmt.Errorf("migrating %s: %w", cfg.DBPath, err)
		}
		logger.Info("migrations applied",
			slog.String("database", cfg.DBPath),
			slog.Int("count", applied),
		)
		return nil
	},
}

var pruneSessionsCmd = &cobra.Command{
	Use:   "prune-sessions",
	Short: "Delete expired sessions from the session store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}

		srv, err := server.New(cfg, logger)
		if err != nil {
			return err
		}
		defer srv.Close()

		n, err := srv.PruneSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("pruning sessions: %w", err)
		}
		logger.Info("expired sessions pruned",
			slog.String("store", cfg.SessionStore),
			slog.Int64("count", n),
		)
		return nil
	},
}
