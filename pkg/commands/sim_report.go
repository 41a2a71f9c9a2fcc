package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mooreio/mio/pkg/service"
)

const reportWidth = 119

func printSimReport(w io.Writer, c *Sim) {
	s := newStyles(w)

	label := s.success.Render(" SUCCESS ")
	if !c.Success() {
		label = s.failure.Render(" FAILURE ")
	}
	banner := strings.Repeat("*", 53) + label + strings.Repeat("*", 54)

	fmt.Fprintln(w, banner)
	if c.compile {
		printStepReport(w, s, "Compilation", c.compilationReport)
	}
	if c.elaborate {
		printStepReport(w, s, "Elaboration", c.elaborationReport)
	}
	if c.compileAndElaborate {
		printStepReport(w, s, "Compilation+Elaboration", c.compilationAndElaboration)
	}
	if c.simulate {
		if c.simulationReport == nil {
			printStepReport(w, s, "Simulation", nil)
		} else {
			printStepReport(w, s, "Simulation", &c.simulationReport.Report)
			fmt.Fprintf(w, " Results: %s\n", c.simulationReport.ResultsPath)
		}
	}
	fmt.Fprintln(w, banner)
}

func printStepReport(w io.Writer, s *styles, step string, rep *service.Report) {
	if rep == nil {
		fmt.Fprintf(w, " %s results - %s\n", step, s.muted.Render("not run"))
		return
	}

	counts := countLabel(s.errors, rep.NumErrors(), "E") + " " + countLabel(s.warns, rep.NumWarnings(), "W")
	if rep.NumFatals() > 0 {
		counts += " " + s.warns.Render("F")
	}

	switch len(rep.LogPaths) {
	case 0:
		fmt.Fprintf(w, " %s results - %s\n", step, counts)
	case 1:
		fmt.Fprintf(w, " %s results - %s: %s\n", step, counts, rep.LogPaths[0])
	default:
		fmt.Fprintf(w, " %s results - %s:\n", step, counts)
		for _, path := range rep.LogPaths {
			fmt.Fprintf(w, "*     * %s\n", path)
		}
	}

	if !rep.Success {
		fmt.Fprintln(w, strings.Repeat("*", reportWidth))
		for _, msg := range rep.Errors {
			fmt.Fprintln(w, s.message.Render(msg))
		}
		for _, msg := range rep.Fatals {
			fmt.Fprintln(w, s.message.Render(msg))
		}
	}
}

func countLabel(style lipgloss.Style, n int, unit string) string {
	text := fmt.Sprintf("%d%s", n, unit)
	if n == 0 {
		return text
	}
	return style.Render(text)
}
