// Package scheduler dispatches simulator jobs to a job scheduler.
//
// A Scheduler runs a single Job or a JobSet. The local backend starts
// processes on this machine, ssh runs them on a remote host and the lsf and
// grid_engine backends submit them to a batch queue and block until they
// complete. Backends are registered in a Registry at startup.
package scheduler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mooreio/mio/pkg/telemetry"
)

// Job is one process to run.
type Job struct {
	Name       string
	WorkingDir string
	Binary     string
	Args       []string
	Env        map[string]string

	// PathPrefix and PathSuffix are placed before and after $PATH.
	PathPrefix string
	PathSuffix string
}

// CommandLine returns the binary and arguments joined by spaces.
func (j *Job) CommandLine() string {
	return strings.Join(append([]string{j.Binary}, j.Args...), " ")
}

// JobSet is a named group of independent jobs.
type JobSet struct {
	Name string
	Jobs []*Job
}

// Add appends a job to the set.
func (s *JobSet) Add(job *Job) {
	s.Jobs = append(s.Jobs, job)
}

// Result is the outcome of a dispatched job.
type Result struct {
	JobName    string
	ReturnCode int
	Stdout     string
	Stderr     string
	Start      time.Time
	End        time.Time
	Hostname   string
}

// Duration returns how long the job ran.
func (r *Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Success reports whether the job exited with status 0.
func (r *Result) Success() bool {
	return r.ReturnCode == 0
}

// Configuration controls a dispatch.
type Configuration struct {
	// OutputToTerminal copies job output to Output while it runs.
	OutputToTerminal bool
	// Output defaults to os.Stdout.
	Output io.Writer
	// MaxParallel bounds concurrent jobs of a set. Values below 1 mean 1.
	MaxParallel int
	// DryRun logs the job instead of running it.
	DryRun bool
}

func (c Configuration) output() io.Writer {
	if !c.OutputToTerminal {
		return nil
	}
	if c.Output == nil {
		return os.Stdout
	}
	return c.Output
}

// Scheduler runs jobs.
type Scheduler interface {
	Name() string
	IsAvailable() bool
	Dispatch(ctx context.Context, job *Job, cfg Configuration) (*Result, error)
	DispatchSet(ctx context.Context, set *JobSet, cfg Configuration) ([]*Result, error)
}

// Options carries the collaborators shared by every backend.
type Options struct {
	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

func (o Options) logger(name string) *telemetry.Logger {
	if o.Logger == nil {
		return telemetry.NewNopLogger().NewComponentLogger("scheduler").WithField("scheduler", name)
	}
	return o.Logger.NewComponentLogger("scheduler").WithField("scheduler", name)
}

// jobStatus is the label recorded in jobs_dispatched_total.
func jobStatus(res *Result, err error, dryRun bool) string {
	switch {
	case err != nil:
		return "error"
	case dryRun:
		return "dry_run"
	case res.Success():
		return "success"
	default:
		return "failure"
	}
}

// composePath returns prefix:path:suffix, skipping empty parts.
func composePath(prefix, path, suffix string) string {
	var parts []string
	for _, p := range []string{prefix, path, suffix} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, string(filepath.ListSeparator))
}
