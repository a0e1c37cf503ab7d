package ui

import (
	"fmt"
	"strings"

	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/migrator"
	"github.com/hlop3z/pgphase/internal/rename"
	"github.com/hlop3z/pgphase/internal/snapshot"
)

// FormatCount formats a count with its singular or plural noun.
func FormatCount(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}

// GroupTitle names a group the way reports and the browser show it.
func GroupTitle(g changeset.Group) string {
	scope := g.Schema
	if scope == "" {
		scope = "database"
	}
	mode := "transaction"
	if !g.Transactional {
		mode = "no transaction"
	}
	return fmt.Sprintf("%s · %s (%s)", scope, g.Phase, mode)
}

// FormatPlan lists the groups of a plan. With sql set every statement is
// printed under its changeset.
func FormatPlan(cs []changeset.Changeset, sql bool) string {
	if len(cs) == 0 {
		return Check("Database is up to date.") + "\n"
	}

	var b strings.Builder
	groups := changeset.Groups(cs)
	for i, g := range groups {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(Bold(GroupTitle(g)) + "\n")
		for _, c := range g.Changesets {
			target := c.TableName
			if target == "" {
				target = c.SchemaName
			}
			b.WriteString("  " + phaseMarker(c) + " " + string(c.Type) + " " + Dim(target) + "\n")
			if sql {
				for _, stmt := range c.Up {
					b.WriteString("      " + Dim(stmt) + "\n")
				}
			}
		}
	}

	if w := changeset.Warnings(cs); len(w) > 0 {
		b.WriteString("\n")
		b.WriteString(FormatWarnings(w))
	}
	fmt.Fprintf(&b, "\n%s in %s\n",
		FormatCount(len(cs), "changeset", "changesets"),
		FormatCount(len(groups), "group", "groups"))
	return b.String()
}

func phaseMarker(c changeset.Changeset) string {
	switch c.Phase {
	case changeset.Expand:
		return Success("+")
	case changeset.Contract:
		return Error("-")
	default:
		return Warning("~")
	}
}

// FormatWarnings lists warnings, one per line.
func FormatWarnings(ws []changeset.Warning) string {
	var b strings.Builder
	for _, w := range ws {
		b.WriteString(FormatWarning(w.String()))
	}
	return b.String()
}

// FormatStatus renders the migration table of the status command.
func FormatStatus(states []migrator.State) string {
	if len(states) == 0 {
		return Dim("No migrations found.") + "\n"
	}
	t := NewTable("MIGRATION", "PHASE", "STATUS", "EXECUTED AT")
	applied := 0
	for _, s := range states {
		status := Badge("PENDING", colorWarning)
		at := ""
		switch {
		case s.Missing:
			status = Badge("MISSING", colorError)
		case s.Applied:
			status = Badge("APPLIED", colorSuccess)
		}
		if s.Applied {
			applied++
			at = s.ExecutedAt.UTC().Format("2006-01-02 15:04:05")
		}
		phase := s.Phase.String()
		if s.Missing {
			phase = "?"
		}
		t.AddRow(s.Name, phase, status, at)
	}
	return t.String() + fmt.Sprintf("\n%d applied, %d pending\n", applied, len(states)-applied)
}

// FormatRenames lists the renames chosen per schema.
func FormatRenames(renames map[string]rename.Renames) string {
	var b strings.Builder
	for _, schema := range snapshot.SortedKeys(renames) {
		r := renames[schema]
		for _, t := range r.Tables {
			fmt.Fprintf(&b, "  %s table %s -> %s\n", Primary("rename"), qualified(schema, t.From), t.To)
		}
		for _, table := range snapshot.SortedKeys(r.Columns) {
			for _, c := range r.Columns[table] {
				fmt.Fprintf(&b, "  %s column %s.%s -> %s\n", Primary("rename"), qualified(schema, table), c.From, c.To)
			}
		}
	}
	return b.String()
}

func qualified(schema, name string) string {
	if schema == "" || schema == "public" {
		return name
	}
	return schema + "." + name
}
