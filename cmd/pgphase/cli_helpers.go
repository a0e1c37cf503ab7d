package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/git"
	"github.com/hlop3z/pgphase/internal/migfile"
	"github.com/hlop3z/pgphase/internal/rename"
	"github.com/hlop3z/pgphase/internal/ui"
	"github.com/hlop3z/pgphase/pkg/pgphase"
)

// setup loads the configuration and the logger for cmd.
func setup(cmd *cobra.Command) (*Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cmd), nil
}

// newClient connects to the configured database.
func newClient(cmd *cobra.Command, extra ...pgphase.Option) (*pgphase.Client, *Config, error) {
	cfg, log, err := setup(cmd)
	if err != nil {
		return nil, nil, err
	}
	client, err := connect(cfg, log, extra...)
	return client, cfg, err
}

func connect(cfg *Config, log *slog.Logger, extra ...pgphase.Option) (*pgphase.Client, error) {
	if cfg.DatabaseURL == "" {
		return nil, alerr.New(alerr.ErrConfig, "no database URL configured").
			WithHelp("pass --database-url, set DATABASE_URL or add database_url to pgphase.yaml")
	}
	return pgphase.New(append(cfg.options(log), extra...)...)
}

// newSchemaOnlyClient reads schema files without a database connection.
func newSchemaOnlyClient(cmd *cobra.Command) (*pgphase.Client, *Config, error) {
	cfg, log, err := setup(cmd)
	if err != nil {
		return nil, nil, err
	}
	return pgphase.NewWithDB(nil, cfg.options(log)...), cfg, nil
}

// Rename policies accepted by --rename.
const (
	renamePrompt = "prompt"
	renameStrict = "strict"
	renameCreate = "create"
	renameAuto   = "auto"
)

func addRenameFlag(cmd *cobra.Command) {
	cmd.Flags().String("rename", "", "Rename policy: prompt, strict, create or auto (default: prompt on a terminal, strict otherwise)")
}

// resolver builds the rename resolver for policy. Renames declared in the
// config file are answered first.
func resolver(cfg *Config) (rename.Resolver, error) {
	policy := cfg.Rename
	if policy == "" {
		policy = renameStrict
		if ui.IsInteractive() {
			policy = renamePrompt
		}
	}

	var r rename.Resolver
	switch policy {
	case renamePrompt:
		if !ui.IsInteractive() {
			return nil, alerr.New(alerr.ErrConfig, "interactive renames need a terminal").
				WithHelp("use --rename strict, create or auto in scripts")
		}
		r = ui.Picker{}
	case renameStrict:
		r = rename.Strict{}
	case renameCreate:
		r = rename.CreateAll{}
	case renameAuto:
		r = rename.Auto{}
	default:
		return nil, alerr.Newf(alerr.ErrConfig, "unknown rename policy %q", policy).
			WithHelp("choose one of prompt, strict, create, auto")
	}

	if len(cfg.Renames.Tables) == 0 && len(cfg.Renames.Columns) == 0 {
		return r, nil
	}
	static := cfg.Renames
	return rename.ResolverFunc(func(ctx context.Context, c rename.Candidate) (rename.Decision, error) {
		if d, err := static.Resolve(ctx, c); err == nil && d.From != "" {
			return d, nil
		}
		return r.Resolve(ctx, c)
	}), nil
}

// planClient connects with the rename policy of the command.
func planClient(cmd *cobra.Command) (*pgphase.Client, *Config, error) {
	cfg, log, err := setup(cmd)
	if err != nil {
		return nil, nil, err
	}
	r, err := resolver(cfg)
	if err != nil {
		return nil, nil, err
	}
	client, err := connect(cfg, log, pgphase.WithResolver(r))
	return client, cfg, err
}

// parsePhases converts --phase values.
func parsePhases(values []string) ([]changeset.Phase, error) {
	var out []changeset.Phase
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			p, ok := changeset.ParsePhase(strings.TrimSpace(name))
			if !ok {
				return nil, alerr.Newf(alerr.ErrConfig, "unknown phase %q", name).
					WithHelp("choose from expand, alter, contract, data")
			}
			out = append(out, p)
		}
	}
	return out, nil
}

// destructive lists the destructive warnings of cs.
func destructive(cs []changeset.Changeset) []string {
	var out []string
	for _, w := range changeset.Warnings(cs) {
		if w.Kind == changeset.Destructive {
			out = append(out, w.String())
		}
	}
	return out
}

// uncommitted lists migration files that differ from git HEAD. Outside a
// git work tree it reports nothing.
func uncommitted(ctx context.Context, cfg *Config) []string {
	repo, err := git.Open(ctx, ".")
	if err != nil {
		return nil
	}
	files, err := repo.Uncommitted(ctx, cfg.MigrationsDir, migfile.Ext)
	if err != nil {
		return nil
	}
	out := make([]string, len(files))
	for i, f := range files {
		rel, err := filepath.Rel(repo.Root(), f.Path)
		if err != nil {
			rel = f.Path
		}
		out[i] = fmt.Sprintf("%s (%s)", rel, f.Status)
	}
	return out
}

func printList(cmd *cobra.Command, mark string, items []string) {
	for _, item := range items {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", mark, item)
	}
}
