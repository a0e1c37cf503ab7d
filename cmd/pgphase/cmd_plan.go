package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hlop3z/pgphase/internal/ui"
)

// checkCmd validates the schema file offline.
func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the schema file",
		Long:  "Load, validate and compile the schema file without connecting to a database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newSchemaOnlyClient(cmd)
			if err != nil {
				return err
			}
			project, err := client.LoadSchema()
			if err != nil {
				return err
			}
			if err := client.Check(project); err != nil {
				return err
			}
			tables := 0
			for _, s := range project.Schemas {
				tables += len(s.Tables)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Check(fmt.Sprintf("%s is valid (%s, %s)",
				cfg.Schema,
				ui.FormatCount(len(project.Schemas), "schema", "schemas"),
				ui.FormatCount(tables, "table", "tables"))))
			return nil
		},
	}
}

// planCmd shows the changesets the database needs.
func planCmd() *cobra.Command {
	var showSQL, browse, watch bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the changesets the database needs",
		Example: `  # Summary grouped by schema and phase
  pgphase plan

  # Include every statement
  pgphase plan --sql

  # Browse the plan in a full screen view
  pgphase plan --browse

  # Re-plan whenever the schema file changes
  pgphase plan --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := planClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			show := func() error {
				p, err := client.Plan(ctx, nil)
				if err != nil {
					if !watch {
						return err
					}
					fmt.Fprint(cmd.ErrOrStderr(), ui.FormatError(err))
					return nil
				}
				if browse && !watch && !p.IsEmpty() && ui.IsInteractive() {
					return ui.Browse(p.Changesets, nil)
				}
				if r := ui.FormatRenames(p.Renames); r != "" {
					fmt.Fprintln(out, ui.Bold("Renames"))
					fmt.Fprintln(out, r)
				}
				fmt.Fprint(out, ui.FormatPlan(p.Changesets, showSQL))
				return nil
			}

			if !watch {
				return show()
			}
			return watchFile(ctx, cfg.Schema, newLogger(cmd), func() error {
				fmt.Fprintln(out, ui.Dim("── "+time.Now().Format(time.TimeOnly)+" ──"))
				return show()
			})
		},
	}
	cmd.Flags().BoolVar(&showSQL, "sql", false, "Print every statement")
	cmd.Flags().BoolVar(&browse, "browse", false, "Browse the plan in a full screen view")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-plan whenever the schema file changes")
	addRenameFlag(cmd)
	return cmd
}
