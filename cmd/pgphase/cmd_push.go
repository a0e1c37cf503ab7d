package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/ui"
)

// pushCmd applies the plan directly, without migration files.
func pushCmd() *cobra.Command {
	var dryRun, confirmDestroy bool

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Apply the schema to the database directly",
		Long: `Diff the schema file against the database and execute the changesets
phase by phase on one connection. Each phase runs in its own transaction;
statements that cannot run in a transaction run on their own. A failure rolls
back the open transaction and stops the push.`,
		Example: `  # Preview the statements
  pgphase push --dry-run

  # Apply, allowing drops
  pgphase push --confirm-destroy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := planClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			p, err := client.Plan(ctx, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if p.IsEmpty() {
				fmt.Fprint(out, ui.FormatPlan(nil, false))
				return nil
			}

			if dryRun {
				fmt.Fprintln(out, strings.Join(client.DryRun(p), ";\n")+";")
				if w := p.Warnings(); len(w) > 0 {
					fmt.Fprint(cmd.ErrOrStderr(), "\n"+ui.FormatWarnings(w))
				}
				return nil
			}

			fmt.Fprint(out, ui.FormatPlan(p.Changesets, false))
			if drops := destructive(p.Changesets); len(drops) > 0 && !confirmDestroy {
				return alerr.Newf(alerr.ErrMigrationFailed, "plan contains %s", ui.FormatCount(len(drops), "destructive change", "destructive changes")).
					With("changes", strings.Join(drops, "; ")).
					WithHelp("review the plan and rerun with --confirm-destroy")
			}

			if err := client.Push(ctx, p); err != nil {
				return err
			}
			fmt.Fprintln(out, ui.Check("Database updated."))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the SQL without executing it")
	cmd.Flags().BoolVar(&confirmDestroy, "confirm-destroy", false, "Allow changesets that drop data")
	addRenameFlag(cmd)
	return cmd
}
