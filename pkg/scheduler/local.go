package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mooreio/mio/pkg/telemetry"
)

// NameLocal is the name of the local process scheduler.
const NameLocal = "local"

// Local runs jobs as child processes of mio.
type Local struct {
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

var _ Scheduler = (*Local)(nil)

// NewLocal creates the local process scheduler.
func NewLocal(opts Options) *Local {
	return &Local{
		logger:  opts.logger(NameLocal),
		metrics: opts.Metrics,
	}
}

// Name returns "local".
func (l *Local) Name() string { return NameLocal }

// IsAvailable is always true.
func (l *Local) IsAvailable() bool { return true }

// Dispatch runs job and waits for it. A non-zero exit status is reported in
// the Result, not as an error.
func (l *Local) Dispatch(ctx context.Context, job *Job, cfg Configuration) (*Result, error) {
	res, err := l.run(ctx, job, cfg)
	dur := time.Duration(0)
	if res != nil {
		dur = res.Duration()
	}
	l.metrics.RecordJob(NameLocal, jobStatus(res, err, cfg.DryRun), dur)
	return res, err
}

// DispatchSet runs every job of set in a pool of cfg.MaxParallel workers.
func (l *Local) DispatchSet(ctx context.Context, set *JobSet, cfg Configuration) ([]*Result, error) {
	return dispatchPool(ctx, set, cfg, l.Dispatch)
}

func (l *Local) run(ctx context.Context, job *Job, cfg Configuration) (*Result, error) {
	log := l.logger.WithField("job", job.Name)
	hostname, _ := os.Hostname()
	res := &Result{JobName: job.Name, Hostname: hostname, Start: time.Now()}

	if cfg.DryRun {
		log.WithField("command", job.CommandLine()).Info("dry run")
		res.End = res.Start
		return res, nil
	}

	env := jobEnvironment(job)
	binary, err := lookPath(job.Binary, envValue(env, "PATH"), job.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}

	cmd := exec.CommandContext(ctx, binary, job.Args...)
	cmd.Dir = job.WorkingDir
	cmd.Env = env

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = teeWriter(&stdoutBuf, cfg.output())
	cmd.Stderr = teeWriter(&stderrBuf, cfg.output())

	log.WithField("command", job.CommandLine()).Debug("starting job")
	err = cmd.Run()
	res.End = time.Now()
	res.Stdout = strings.TrimSpace(stdoutBuf.String())
	res.Stderr = strings.TrimSpace(stderrBuf.String())

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		res.ReturnCode = -1
		return res, ctx.Err()
	case err == nil:
	case errors.As(err, &exitErr):
		res.ReturnCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}

	log.WithField("return_code", res.ReturnCode).
		WithField("duration", res.Duration().String()).
		Debug("job finished")
	return res, nil
}

// jobEnvironment returns the process environment overlaid with job.Env and
// the job's PATH prefix and suffix.
func jobEnvironment(job *Job) []string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	for k, v := range job.Env {
		vars[k] = v
	}
	vars["PATH"] = composePath(job.PathPrefix, vars["PATH"], job.PathSuffix)

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}

func envValue(env []string, key string) string {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v
		}
	}
	return ""
}

// lookPath resolves binary against path rather than the PATH of mio itself,
// so a job's PATH prefix can select the tool. Relative paths with a separator
// are resolved against dir.
func lookPath(binary, path, dir string) (string, error) {
	if strings.Contains(binary, string(filepath.Separator)) {
		if !filepath.IsAbs(binary) && dir != "" {
			binary = filepath.Join(dir, binary)
		}
		if isExecutable(binary) {
			return binary, nil
		}
		return "", fmt.Errorf("%s is not an executable file", binary)
	}
	for _, d := range filepath.SplitList(path) {
		if d == "" {
			continue
		}
		candidate := filepath.Join(d, binary)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("executable %s not found in PATH", binary)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode().Perm()&0111 != 0
}

func teeWriter(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
