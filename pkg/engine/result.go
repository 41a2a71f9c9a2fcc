package engine

import (
	"errors"
	"time"
)

// PhaseRecord is what remains of a Phase after it finished.
type PhaseRecord struct {
	Name       string
	Group      string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
	EndedRun   bool
}

// Result is returned by Engine.Execute and describes one command run.
// Callers (the CLI, tests) inspect it instead of any process-wide state.
type Result struct {
	RunID      string
	Command    string
	StartedAt  time.Time
	FinishedAt time.Time

	// Phases lists every executed sub-phase in order.
	Phases []PhaseRecord

	// GroupsRun lists every executed phase group in order.
	GroupsRun []string

	// EndedEarly is set when a phase asked to end the process or a user error occurred.
	EndedEarly bool
	EndMessage string

	// Fatal holds the engine-contract violation that aborted the run, if any.
	Fatal error
}

func newResult(runID, command string) *Result {
	return &Result{
		RunID:     runID,
		Command:   command,
		StartedAt: time.Now(),
		Phases:    make([]PhaseRecord, 0, 60),
		GroupsRun: make([]string, 0, 20),
	}
}

func (r *Result) record(group string, p *Phase) {
	r.Phases = append(r.Phases, PhaseRecord{
		Name:       p.Name(),
		Group:      group,
		StartedAt:  p.StartedAt(),
		FinishedAt: p.FinishedAt(),
		Err:        p.Error(),
		EndedRun:   p.EndsProcess(),
	})
}

// PhaseNames returns the executed sub-phase names in order.
func (r *Result) PhaseNames() []string {
	names := make([]string, 0, len(r.Phases))
	for _, p := range r.Phases {
		names = append(names, p.Name)
	}
	return names
}

// Errors returns every error attached to a phase, in order, followed by the fatal error.
func (r *Result) Errors() []error {
	var errs []error
	for _, p := range r.Phases {
		if p.Err != nil {
			errs = append(errs, p.Err)
		}
	}
	if r.Fatal != nil {
		errs = append(errs, r.Fatal)
	}
	return errs
}

// Err joins all errors of the run, or returns nil on success.
func (r *Result) Err() error {
	return errors.Join(r.Errors()...)
}

// Success reports whether no phase carried an error.
func (r *Result) Success() bool {
	return len(r.Errors()) == 0
}

// ExitCode is the process exit code for this run.
func (r *Result) ExitCode() int {
	if r.Success() {
		return 0
	}
	return 1
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
