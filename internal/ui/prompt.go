package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/rename"
)

// Question describes a rename candidate for display.
func Question(c rename.Candidate) string {
	target := c.Added
	if c.Table != "" {
		target = c.Table + "." + c.Added
	}
	return fmt.Sprintf("Is %s %s new or renamed?", c.Kind, qualified(c.Schema, target))
}

// Options lists the answers for c: each removed name best match first, then
// "create".
func Options(c rename.Candidate) []string {
	out := make([]string, 0, len(c.Removed)+1)
	for _, s := range c.Removed {
		out = append(out, fmt.Sprintf("rename from %s (%.0f%% match)", s.Name, s.Score*100))
	}
	return append(out, "create "+c.Added)
}

// decision maps a zero based option index to a Decision.
func decision(c rename.Candidate, i int) rename.Decision {
	if i < len(c.Removed) {
		return rename.Decision{From: c.Removed[i].Name}
	}
	return rename.Decision{}
}

// LineResolver asks rename questions on a line based terminal. An empty
// answer picks the best match.
type LineResolver struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewLineResolver reads answers from in and writes questions to out.
func NewLineResolver(in io.Reader, out io.Writer) *LineResolver {
	return &LineResolver{in: bufio.NewScanner(in), out: out}
}

// Resolve implements rename.Resolver.
func (r *LineResolver) Resolve(ctx context.Context, c rename.Candidate) (rename.Decision, error) {
	options := Options(c)
	fmt.Fprintln(r.out, Primary("? ")+Question(c))
	for i, opt := range options {
		fmt.Fprintf(r.out, "  %s %s\n", Dim(strconv.Itoa(i+1)+"."), opt)
	}

	for {
		if err := ctx.Err(); err != nil {
			return rename.Decision{}, err
		}
		fmt.Fprint(r.out, Primary("Select")+Dim(" (1)")+Primary(": "))
		if !r.in.Scan() {
			err := r.in.Err()
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return rename.Decision{}, alerr.Wrap(alerr.ErrRenameUnresolved, err, "no answer to rename question").
				With("candidate", c.Added)
		}
		answer := strings.TrimSpace(r.in.Text())
		if answer == "" {
			return decision(c, 0), nil
		}
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(options) {
			return decision(c, n-1), nil
		}
		fmt.Fprintf(r.out, "%s enter a number between 1 and %d\n", Warning("!"), len(options))
	}
}
