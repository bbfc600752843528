package main

import (
	"github.com/spf13/cobra"

	"github.com/iliyamo/stay-booking-payments/internal/config"
	"github.com/iliyamo/stay-booking-payments/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := newLogger()

			db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info().Str("db", cfg.DBName).Msg("schema is up to date")
			return nil
		},
	}
}
