package scheduler

import (
	"context"
	"os/exec"
	"time"

	"github.com/mooreio/mio/pkg/config"
	"github.com/mooreio/mio/pkg/telemetry"
)

// Batch queue scheduler names.
const (
	NameLSF        = "lsf"
	NameGridEngine = "grid_engine"
)

// Batch submits jobs to a batch queue through a blocking submission command
// run on this machine. The submission command returns the job's exit status.
type Batch struct {
	name      string
	submit    string
	blocking  []string
	queueFlag string
	queue     config.QueueFlags

	local   *Local
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

var _ Scheduler = (*Batch)(nil)

// NewLSF returns a scheduler submitting with "bsub -K -I".
func NewLSF(queue config.QueueFlags, opts Options) *Batch {
	return newBatch(NameLSF, "bsub", []string{"-K", "-I"}, "-q", queue, opts)
}

// NewGridEngine returns a scheduler submitting with "qsub -sync y". Jobs are
// submitted as binaries (-b y) in the current directory (-cwd) with the
// submitting environment (-V).
func NewGridEngine(queue config.QueueFlags, opts Options) *Batch {
	return newBatch(NameGridEngine, "qsub", []string{"-sync", "y", "-b", "y", "-cwd", "-V"}, "-q", queue, opts)
}

func newBatch(name, submit string, blocking []string, queueFlag string, queue config.QueueFlags, opts Options) *Batch {
	return &Batch{
		name:      name,
		submit:    submit,
		blocking:  blocking,
		queueFlag: queueFlag,
		queue:     queue,
		// the wrapped local scheduler must not double count jobs
		local:   NewLocal(Options{Logger: opts.Logger}),
		logger:  opts.logger(name),
		metrics: opts.Metrics,
	}
}

// Name returns the scheduler name.
func (b *Batch) Name() string { return b.name }

// IsAvailable reports whether the submission command is on PATH.
func (b *Batch) IsAvailable() bool {
	_, err := exec.LookPath(b.submit)
	return err == nil
}

// Dispatch submits job and waits for it to complete.
func (b *Batch) Dispatch(ctx context.Context, job *Job, cfg Configuration) (*Result, error) {
	wrapped := b.wrap(job)
	b.logger.WithField("job", job.Name).WithField("command", wrapped.CommandLine()).Debug("submitting job")

	res, err := b.local.run(ctx, wrapped, cfg)
	if res != nil {
		res.JobName = job.Name
	}
	dur := time.Duration(0)
	if res != nil {
		dur = res.Duration()
	}
	b.metrics.RecordJob(b.name, jobStatus(res, err, cfg.DryRun), dur)
	return res, err
}

// DispatchSet submits every job of set, keeping at most cfg.MaxParallel
// submissions outstanding.
func (b *Batch) DispatchSet(ctx context.Context, set *JobSet, cfg Configuration) ([]*Result, error) {
	return dispatchPool(ctx, set, cfg, b.Dispatch)
}

// wrap returns a job running the submission command for job.
func (b *Batch) wrap(job *Job) *Job {
	args := append([]string{}, b.blocking...)
	if b.queue.Queue != "" {
		args = append(args, b.queueFlag, b.queue.Queue)
	}
	args = append(args, b.queue.Flags...)
	args = append(args, job.Binary)
	args = append(args, job.Args...)

	return &Job{
		Name:       job.Name,
		WorkingDir: job.WorkingDir,
		Binary:     b.submit,
		Args:       args,
		Env:        job.Env,
		PathPrefix: job.PathPrefix,
		PathSuffix: job.PathSuffix,
	}
}
