// Package main provides catalogctl, an operator CLI for bulk-loading and
// inspecting the research catalog in PostgreSQL.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayush/research-catalog/backend/internal/catalog"
	"github.com/ayush/research-catalog/backend/internal/store"
)

var (
	dsn     string
	timeout time.Duration
	verbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "catalogctl",
	Short: "Bulk-load and inspect the research catalog",
	Long: `catalogctl talks to the catalog's PostgreSQL database directly.

Artifacts imported here are validated exactly as the API validates them,
and become searchable the next time the server starts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if dsn == "" {
			return fmt.Errorf("--dsn or POSTGRES_DSN is required")
		}
		return nil
	},
}

func init() {
	_ = godotenv.Load()
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "Per-call store timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every stored artifact")
}

func newLogger() *zap.Logger {
	if verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	return zap.NewNop()
}

// openCatalog connects to PostgreSQL, applies the schema and loads the
// existing artifacts so duplicate ids are rejected on import.
func openCatalog(ctx context.Context) (*catalog.Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	pg := store.NewPostgresStore(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	existing, err := pg.ListArtifacts(ctx)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("load artifacts: %w", err)
	}
	cat := catalog.NewStore(pg, timeout, newLogger())
	cat.Restore(existing)
	return cat, pool.Close, nil
}
