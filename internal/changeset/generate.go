package changeset

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hlop3z/pgphase/internal/diff"
	"github.com/hlop3z/pgphase/internal/snapshot"
)

// Generate converts diffs into changesets. Renames recorded in the context
// produce their own changesets. Diffs that cannot be turned into SQL are
// skipped and logged.
func Generate(gctx Context, diffs []diff.Diff) []Changeset {
	g := &generator{ctx: &gctx}

	var out []Changeset
	out = append(out, g.renames()...)
	for _, d := range diffs {
		out = append(out, g.generate(d)...)
	}
	return out
}

type generator struct {
	ctx *Context
}

func (g *generator) generate(d diff.Diff) []Changeset {
	switch d.Kind {
	case diff.KindSchemaCreate:
		return g.schemaCreate(d)
	case diff.KindSchemaDrop:
		return g.schemaDrop(d)
	case diff.KindExtensionCreate:
		return g.extensionCreate(d)
	case diff.KindExtensionDrop:
		return g.extensionDrop(d)
	case diff.KindEnumCreate:
		return g.enumCreate(d)
	case diff.KindEnumDrop:
		return g.enumDrop(d)
	case diff.KindEnumChange:
		return g.enumChange(d)
	case diff.KindTableCreate:
		return g.tableCreate(d)
	case diff.KindTableDrop:
		return g.tableDrop(d)
	case diff.KindColumnCreate:
		return g.columnCreate(d)
	case diff.KindColumnDrop:
		return g.columnDrop(d)
	case diff.KindColumnDataType:
		return g.columnDataType(d)
	case diff.KindColumnDefault:
		return g.columnDefault(d)
	case diff.KindColumnNullable:
		return g.columnNullable(d)
	case diff.KindColumnIdentity:
		return g.columnIdentity(d)
	case diff.KindPrimaryKeyCreate, diff.KindPrimaryKeyDrop, diff.KindPrimaryKeyChange,
		diff.KindUniqueCreate, diff.KindUniqueDrop, diff.KindUniqueChange,
		diff.KindCheckCreate, diff.KindCheckDrop, diff.KindCheckChange,
		diff.KindForeignKeyCreate, diff.KindForeignKeyDrop, diff.KindForeignKeyChange:
		return g.constraint(d)
	case diff.KindIndexCreate:
		return g.indexCreate(d)
	case diff.KindIndexDrop:
		return g.indexDrop(d)
	case diff.KindIndexChange:
		return g.indexChange(d)
	case diff.KindTriggerCreate:
		return g.triggerCreate(d)
	case diff.KindTriggerDrop:
		return g.triggerDrop(d)
	case diff.KindTriggerChange:
		return g.triggerChange(d)
	case diff.KindUnknown:
		return g.skip(d, "unrecognized diff")
	default:
		return g.skip(d, "no generator for kind")
	}
}

// skip records a diff that produced no changeset.
func (g *generator) skip(d diff.Diff, reason string) []Changeset {
	level := slog.LevelDebug
	if g.ctx.Debug {
		level = slog.LevelInfo
	}
	g.ctx.logger().Log(context.Background(), level, "skipping diff",
		"schema", g.ctx.Schema,
		"kind", d.Kind.String(),
		"type", string(d.Type),
		"path", strings.Join(d.Path, "."),
		"reason", reason,
	)
	return nil
}

func columnValue(v any) (*snapshot.ColumnInfo, bool) {
	c, ok := v.(*snapshot.ColumnInfo)
	return c, ok && c != nil
}

func tableValue(v any) (*snapshot.TableInfo, bool) {
	t, ok := v.(*snapshot.TableInfo)
	return t, ok && t != nil
}

func definitionValue(v any) (snapshot.Definition, bool) {
	d, ok := v.(snapshot.Definition)
	return d, ok && !d.IsZero()
}
