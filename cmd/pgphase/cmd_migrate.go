package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/ui"
)

// generateCmd writes the plan as migration files.
func generateCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"gen"},
		Short:   "Write the plan as migration files",
		Long: `Diff the schema file against the database and write one migration file per
schema, phase and transaction group. Files are chained so each depends on the
one before it, and the lock file is refreshed.`,
		Example: `  pgphase generate -n add_invoices`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := planClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			p, err := client.Plan(cmd.Context(), nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if p.IsEmpty() {
				fmt.Fprint(out, ui.FormatPlan(nil, false))
				return nil
			}
			if w := p.Warnings(); len(w) > 0 {
				fmt.Fprint(out, ui.FormatWarnings(w))
			}

			paths, err := client.Generate(p, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ui.Check(fmt.Sprintf("Wrote %s to %s",
				ui.FormatCount(len(paths), "migration", "migrations"), cfg.MigrationsDir)))
			printList(cmd, "+", paths)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Description added to the file names")
	addRenameFlag(cmd)
	return cmd
}

// migrateCmd applies or reverts migration files.
func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert migration files",
	}
	cmd.AddCommand(migrateUpCmd(), migrateDownCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	var phaseFlags []string

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Long: `Apply pending migrations in name order. With --phase only migrations of the
given phases run, so expand can be deployed before the application and
contract after it.`,
		Example: `  # Before deploying the application
  pgphase migrate up --phase expand,alter

  # After every instance runs the new code
  pgphase migrate up --phase contract`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			phases, err := parsePhases(phaseFlags)
			if err != nil {
				return err
			}
			client, cfg, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if files := uncommitted(cmd.Context(), cfg); len(files) > 0 {
				newLogger(cmd).Warn("applying migration files that are not committed", "files", files)
			}
			applied, err := client.MigrateUp(cmd.Context(), phases...)
			printList(cmd, "✓", applied)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Check("Applied "+ui.FormatCount(len(applied), "migration", "migrations")))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&phaseFlags, "phase", "p", nil, "Only apply these phases (expand, alter, contract, data)")
	return cmd
}

func migrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down [steps]",
		Short: "Revert the newest applied migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return alerr.Newf(alerr.ErrConfig, "invalid step count %q", args[0]).
						WithHelp("pass a positive number of migrations to revert")
				}
				steps = n
			}
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			reverted, err := client.MigrateDown(cmd.Context(), steps)
			printList(cmd, "↩", reverted)
			if err != nil {
				return err
			}
			if len(reverted) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to revert.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Check("Reverted "+ui.FormatCount(len(reverted), "migration", "migrations")))
			return nil
		},
	}
}
