package drift

import (
	"fmt"
	"strings"
)

// Format renders a drift result for the status command.
func Format(result *Result) string {
	if result == nil {
		return "No drift check result available.\n"
	}
	if !result.HasDrift {
		return fmt.Sprintf("Database matches the declared schema (%d schemas checked).\n", len(result.Comparisons))
	}

	var b strings.Builder
	b.WriteString("Schema drift detected\n")
	for _, c := range result.Comparisons {
		if c.Match {
			continue
		}
		formatComparison(&b, c)
	}
	b.WriteString("\nRun 'pgphase generate' to write migrations that close the gap.\n")
	return b.String()
}

func formatComparison(b *strings.Builder, c *Comparison) {
	name := c.Schema
	if name == "" {
		name = "(database)"
	}
	fmt.Fprintf(b, "\n  %s  expected %s, actual %s\n", name, shortHash(c.ExpectedRoot), shortHash(c.ActualRoot))

	list(b, "    ", "-", "missing tables", c.MissingTables)
	list(b, "    ", "+", "extra tables", c.ExtraTables)
	for _, td := range c.Tables {
		fmt.Fprintf(b, "    %s:\n", td.Name)
		list(b, "      ", "-", "missing", td.Missing)
		list(b, "      ", "+", "extra", td.Extra)
		list(b, "      ", "~", "changed", td.Modified)
	}
	list(b, "    ", "-", "missing types", c.MissingTypes)
	list(b, "    ", "+", "extra types", c.ExtraTypes)
	list(b, "    ", "~", "changed types", c.ModifiedTypes)
}

func list(b *strings.Builder, indent, mark, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s%s:\n", indent, title)
	for _, it := range items {
		fmt.Fprintf(b, "%s  %s %s\n", indent, mark, it)
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
