package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/root"
	"github.com/mooreio/mio/pkg/stores"
)

// DefaultHistoryCount is the number of runs mio history prints without -n.
const DefaultHistoryCount = 20

// History prints the most recent runs recorded in the project.
type History struct {
	engine.Base
	rt    *root.Runtime
	count int
}

// NewHistory creates the history command. A count of zero or less prints
// DefaultHistoryCount runs.
func NewHistory(rt *root.Runtime, count int) *History {
	if count <= 0 {
		count = DefaultHistoryCount
	}
	return &History{Base: engine.Base{CommandName: "history"}, rt: rt, count: count}
}

// Hooks implements engine.Command.
func (c *History) Hooks() engine.Hooks {
	return engine.Hooks{
		engine.GroupMain: c.main,
	}
}

func (c *History) main(ctx context.Context, p *engine.Phase) {
	store, err := c.rt.History(ctx)
	if err != nil {
		fail(p, err)
		return
	}
	runs, err := store.ListRuns(ctx, c.count, 0)
	if err != nil {
		fail(p, engine.NewDomainError("failed to read command history", err))
		return
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.rt.Out, "No runs recorded")
		return
	}
	printRuns(c.rt.Out, runs)
}

var historyColumns = []struct {
	title string
	width int
}{
	{"RUN", 10},
	{"STARTED", 21},
	{"COMMAND", 11},
	{"STATUS", 11},
	{"EXIT", 6},
	{"DURATION", 12},
	{"ARGS", 0},
}

// printRuns writes one line per run, in the order given.
func printRuns(w io.Writer, runs []*stores.Run) {
	s := newStyles(w)
	var line strings.Builder
	for _, col := range historyColumns {
		if col.width == 0 {
			line.WriteString(s.header.Render(col.title))
			continue
		}
		line.WriteString(s.cell(s.header, col.width, col.title))
	}
	fmt.Fprintln(w, strings.TrimRight(line.String(), " "))

	for _, run := range runs {
		status := s.success
		switch run.Status {
		case stores.RunStatusFailed:
			status = s.message
		case stores.RunStatusEnded:
			status = s.muted
		}
		id := run.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fields := []struct {
			style lipgloss.Style
			text  string
		}{
			{s.muted, id},
			{s.r.NewStyle(), run.StartedAt.Local().Format(time.DateTime)},
			{s.r.NewStyle(), run.Command},
			{status, string(run.Status)},
			{s.r.NewStyle(), strconv.Itoa(run.ExitCode)},
			{s.r.NewStyle(), run.Duration().Round(time.Millisecond).String()},
		}
		line.Reset()
		for i, f := range fields {
			line.WriteString(s.cell(f.style, historyColumns[i].width, f.text))
		}
		line.WriteString(strings.Join(run.Args, " "))
		fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
		if run.Error != nil {
			fmt.Fprintf(w, "  %s\n", s.message.Render(firstLine(*run.Error)))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
