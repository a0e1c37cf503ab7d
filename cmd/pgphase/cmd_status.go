package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/drift"
	"github.com/hlop3z/pgphase/internal/lockfile"
	"github.com/hlop3z/pgphase/internal/rename"
	"github.com/hlop3z/pgphase/internal/ui"
	"github.com/hlop3z/pgphase/pkg/pgphase"
)

// statusCmd shows applied and pending migrations.
func statusCmd() *cobra.Command {
	var checkDrift bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Example: `  pgphase status
  pgphase status --drift`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Drift never asks rename questions.
			client, cfg, err := newClient(cmd, pgphase.WithResolver(rename.CreateAll{}))
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			states, err := client.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(out, ui.FormatStatus(states))

			res, err := client.VerifyLock()
			if err != nil {
				return err
			}
			fmt.Fprint(out, formatLock(res))
			if files := uncommitted(ctx, cfg); len(files) > 0 {
				fmt.Fprintln(out, ui.Warning(ui.FormatCount(len(files), "migration file is", "migration files are")+" not committed"))
				printList(cmd, "!", files)
			}

			if !checkDrift {
				return nil
			}
			p, err := client.Plan(ctx, nil)
			if err != nil {
				return err
			}
			d, err := client.Drift(p)
			if err != nil {
				return err
			}
			fmt.Fprint(out, "\n"+drift.Format(d))
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkDrift, "drift", false, "Compare the database with the schema file")
	return cmd
}

// pendingCmd lists unapplied migrations.
func pendingCmd() *cobra.Command {
	var phaseFlags []string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			phases, err := parsePhases(phaseFlags)
			if err != nil {
				return err
			}
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ms, err := client.Pending(cmd.Context(), phases...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ms) == 0 {
				fmt.Fprintln(out, "No pending migrations.")
				return nil
			}
			t := ui.NewTable("MIGRATION", "PHASE", "DEPENDS ON")
			for _, m := range ms {
				dep := m.DependsOn
				if dep == "" {
					dep = "-"
				}
				t.AddRow(m.Name, m.Phase.String(), ui.Dim(dep))
			}
			fmt.Fprint(out, t.String())
			fmt.Fprintln(out, ui.FormatCount(len(ms), "pending migration", "pending migrations"))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&phaseFlags, "phase", "p", nil, "Only list these phases")
	return cmd
}

// lockCmd refreshes or verifies the migration lock file.
func lockCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Refresh the migration lock file",
		Long: `Record a checksum of every migration file in the lock file. With --check the
files are compared against the lock instead, which fails when a migration was
edited, added or removed without refreshing it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newSchemaOnlyClient(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !check {
				if err := client.Lock(); err != nil {
					return err
				}
				fmt.Fprintln(out, ui.Check("Lock file updated: "+client.Config().LockFile))
				return nil
			}

			res, err := client.VerifyLock()
			if err != nil {
				return err
			}
			fmt.Fprint(out, formatLock(res))
			if !res.Valid() {
				return alerr.New(alerr.ErrMigrationChecksum, "migration files do not match the lock file").
					With("dir", cfg.MigrationsDir).
					WithHelp("run 'pgphase lock' after reviewing the changed files")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Verify the files instead of rewriting the lock")
	return cmd
}

func formatLock(res *lockfile.Result) string {
	if !res.LockExists {
		return ui.Dim("No lock file.") + "\n"
	}
	if res.Valid() {
		return ui.Check(fmt.Sprintf("Lock file matches %s", ui.FormatCount(len(res.Verified), "migration", "migrations"))) + "\n"
	}
	var b strings.Builder
	b.WriteString(ui.Cross("Lock file mismatch") + "\n")
	for _, f := range res.Modified {
		b.WriteString("  " + ui.Warning("~ "+f) + " modified\n")
	}
	for _, f := range res.New {
		b.WriteString("  " + ui.Note("+ "+f) + " not locked\n")
	}
	for _, f := range res.Removed {
		b.WriteString("  " + ui.Error("- "+f) + " missing\n")
	}
	return b.String()
}
