package stores

import (
	"context"
	"time"
)

// RunStatus is the outcome of a command run.
type RunStatus string

const (
	// RunStatusSucceeded means every phase completed without error.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusEnded means a phase ended the run early without error, e.g. `mio list`.
	RunStatusEnded RunStatus = "ended"
	// RunStatusFailed means a phase reported an error.
	RunStatusFailed RunStatus = "failed"
)

// Run is one recorded command invocation.
type Run struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Args       []string  `json:"args"`
	WorkingDir string    `json:"working_dir"`
	Status     RunStatus `json:"status"`
	ExitCode   int       `json:"exit_code"`
	EndMessage *string   `json:"end_message,omitempty"`
	Error      *string   `json:"error,omitempty"`
	Phases     []string  `json:"phases"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// HistoryStore records command runs.
type HistoryStore interface {
	RecordRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	PruneRuns(ctx context.Context, keep int) (int64, error)
	Close() error
}
