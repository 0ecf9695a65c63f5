package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"createtree/internal/sqlinline"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres job schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dsn := strings.TrimSpace(databaseURL)
			if dsn == "" {
				dsn = cfg.Jobs.DatabaseURL
			}
			if dsn == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			if err := migrate(cmd.Context(), dsn); err != nil {
				return err
			}
			ctx.log().Info().Msg("job schema applied")
			fmt.Fprintln(cmd.OutOrStdout(), "job schema applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres DSN (defaults to DATABASE_URL)")
	return cmd
}

func migrate(parent context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqlinline.QJobsSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
