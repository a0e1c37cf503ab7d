package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/rename"
)

// Terminal colors for full screen views.
var theme = struct {
	Border, Title, Selection, Dim tcell.Color
}{
	Border:    tcell.ColorGray,
	Title:     tcell.ColorYellow,
	Selection: tcell.ColorTeal,
	Dim:       tcell.ColorGray,
}

func newApp(screen tcell.Screen) *tview.Application {
	app := tview.NewApplication()
	if screen != nil {
		app.SetScreen(screen)
	}
	return app
}

func styleBox(b *tview.Box, title string) {
	b.SetBorder(true).
		SetBorderColor(theme.Border).
		SetTitle(" " + title + " ").
		SetTitleColor(theme.Title).
		SetTitleAlign(tview.AlignLeft)
}

// Picker asks rename questions in a full screen list. Escape cancels.
type Picker struct {
	// Screen replaces the terminal; a screen serves a single question.
	Screen tcell.Screen
}

// Resolve implements rename.Resolver.
func (p Picker) Resolve(ctx context.Context, c rename.Candidate) (rename.Decision, error) {
	app := newApp(p.Screen)
	choice := -1

	list := tview.NewList().
		ShowSecondaryText(false).
		SetSelectedBackgroundColor(theme.Selection)
	for i, opt := range Options(c) {
		var key rune
		if i < 9 {
			key = rune('1' + i)
		}
		list.AddItem(opt, "", key, func() {
			choice = i
			app.Stop()
		})
	}
	styleBox(list.Box, Question(c))

	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape {
			app.Stop()
			return nil
		}
		return ev
	})

	stop := context.AfterFunc(ctx, app.Stop)
	defer stop()
	if err := app.SetRoot(list, true).Run(); err != nil {
		return rename.Decision{}, alerr.Wrap(alerr.EInternalError, err, "terminal UI failed")
	}
	if err := ctx.Err(); err != nil {
		return rename.Decision{}, err
	}
	if choice < 0 {
		return rename.Decision{}, alerr.New(alerr.ErrRenameUnresolved, "rename question cancelled").
			With("candidate", c.Added)
	}
	return decision(c, choice), nil
}

// Browse shows a plan in a two pane view: changesets on the left, the
// statements and warnings of the selected one on the right. q or Escape
// quits.
func Browse(cs []changeset.Changeset, screen tcell.Screen) error {
	app := newApp(screen)

	detail := tview.NewTextView().SetDynamicColors(false).SetWrap(true)
	styleBox(detail.Box, "Statements")

	list := tview.NewList().
		ShowSecondaryText(true).
		SetSecondaryTextColor(theme.Dim).
		SetSelectedBackgroundColor(theme.Selection)
	for _, g := range changeset.Groups(cs) {
		title := GroupTitle(g)
		for _, c := range g.Changesets {
			list.AddItem(string(c.Type)+" "+c.TableName, title, 0, nil)
		}
	}
	styleBox(list.Box, fmt.Sprintf("Plan (%s)", FormatCount(len(cs), "changeset", "changesets")))

	show := func(i int) {
		if i >= 0 && i < len(cs) {
			detail.SetText(Detail(cs[i])).ScrollToBeginning()
		}
	}
	list.SetChangedFunc(func(i int, _, _ string, _ rune) { show(i) })
	show(0)

	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return ev
	})

	flex := tview.NewFlex().
		AddItem(list, 0, 1, true).
		AddItem(detail, 0, 2, false)
	if err := app.SetRoot(flex, true).Run(); err != nil {
		return alerr.Wrap(alerr.EInternalError, err, "terminal UI failed")
	}
	return nil
}

// Detail renders one changeset as plain text.
func Detail(c changeset.Changeset) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  phase=%s priority=%d", c.Type, c.Phase, c.Priority)
	if !c.Transactional() {
		b.WriteString(" (no transaction)")
	}
	b.WriteString("\n\n-- up\n")
	for _, s := range c.Up {
		b.WriteString(s + ";\n")
	}
	b.WriteString("\n-- down\n")
	for _, s := range c.Down {
		b.WriteString(s + ";\n")
	}
	if len(c.Warnings) > 0 {
		b.WriteString("\n-- warnings\n")
		for _, w := range c.Warnings {
			b.WriteString(w.String() + "\n")
		}
	}
	return b.String()
}
