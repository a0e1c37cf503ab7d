// Package main provides the pgphase CLI. pgphase compares a declared
// Postgres schema with a live database and either applies the difference
// directly or writes it as phased migration files.
//
// Usage:
//
//	pgphase check                # Validate the schema file
//	pgphase plan                 # Show the changesets the database needs
//	pgphase push                 # Apply them directly
//	pgphase generate             # Write them as migration files
//	pgphase migrate up|down      # Apply or revert migration files
//	pgphase status               # Show applied and pending migrations
//	pgphase pending              # List pending migrations
//	pgphase lock                 # Refresh the migration lock file
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hlop3z/pgphase/internal/ui"
	"github.com/hlop3z/pgphase/pkg/pgphase"

	// Database drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// version is set via ldflags during build: -ldflags="-X main.version=v1.0.0"
var version = "dev"

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pgphase",
		Short:         "Phased Postgres schema migrations",
		Long:          "pgphase diffs a declared Postgres schema against a live database and applies the result in expand, alter and contract phases.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				ui.SetColors(false)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "pgphase.yaml", "Path to config file")
	pf.StringP("database-url", "d", "", "Database connection URL")
	pf.String("driver", pgphase.DriverPQ, "Database driver (postgres or pgx)")
	pf.StringP("schema", "s", "schema.yaml", "Schema file")
	pf.String("migrations-dir", "migrations", "Migrations directory")
	pf.String("lock-file", "", "Migration lock file (default: <migrations-dir>/pgphase.lock)")
	pf.Bool("camel-case", false, "Map camelCase names to snake_case")
	pf.Bool("debug", false, "Log skipped changesets and debug details")
	pf.Bool("no-color", false, "Disable colored output")

	root.AddCommand(
		checkCmd(),
		planCmd(),
		pushCmd(),
		generateCmd(),
		migrateCmd(),
		statusCmd(),
		pendingCmd(),
		lockCmd(),
	)
	return root
}

// newLogger writes structured logs to stderr.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, ui.Warning("cancelled"))
			os.Exit(130)
		}
		fmt.Fprint(os.Stderr, ui.FormatError(err))
		os.Exit(1)
	}
}
