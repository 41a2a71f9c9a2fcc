package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mooreio/mio/pkg/config"
	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/telemetry"
	sshtransport "github.com/mooreio/mio/pkg/transports/ssh"
)

// NameSSH is the name of the remote host scheduler.
const NameSSH = "ssh"

// SSH runs jobs on a remote host. Each job is staged as a shell script in the
// remote staging directory, run with sh and removed afterwards.
type SSH struct {
	host       string
	stagingDir string
	transport  sshtransport.Transport

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

var _ Scheduler = (*SSH)(nil)

// NewSSH creates a scheduler over an existing transport. Scripts are staged
// under stagingDir, or /tmp when empty.
func NewSSH(transport sshtransport.Transport, stagingDir string, opts Options) *SSH {
	if stagingDir == "" {
		stagingDir = "/tmp"
	}
	var host string
	if transport != nil {
		host = transport.GetConnectionInfo().Host
	}
	return &SSH{
		host:       host,
		stagingDir: stagingDir,
		transport:  transport,
		logger:     opts.logger(NameSSH),
		metrics:    opts.Metrics,
	}
}

// NewSSHFromConfig builds the transport for target. A target without a host
// yields an unavailable scheduler.
func NewSSHFromConfig(target config.SSHTarget, opts Options) (*SSH, error) {
	if target.Host == "" {
		return NewSSH(nil, target.WorkingDir, opts), nil
	}

	client, err := sshtransport.NewSSHClient(sshtransport.ConfigFromTarget(target), opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("ssh scheduler for %s: %w", target.Host, err)
	}
	return NewSSH(client, target.WorkingDir, opts), nil
}

// Name returns "ssh".
func (s *SSH) Name() string { return NameSSH }

// IsAvailable reports whether a remote host is configured.
func (s *SSH) IsAvailable() bool { return s.transport != nil }

// Dispatch runs job on the remote host.
func (s *SSH) Dispatch(ctx context.Context, job *Job, cfg Configuration) (*Result, error) {
	res, err := s.run(ctx, job, cfg)
	dur := time.Duration(0)
	if res != nil {
		dur = res.Duration()
	}
	s.metrics.RecordJob(NameSSH, jobStatus(res, err, cfg.DryRun), dur)
	return res, err
}

// DispatchSet runs the jobs of set over the shared connection.
func (s *SSH) DispatchSet(ctx context.Context, set *JobSet, cfg Configuration) ([]*Result, error) {
	return dispatchPool(ctx, set, cfg, s.Dispatch)
}

// Close disconnects from the remote host.
func (s *SSH) Close() error {
	if s.transport == nil {
		return nil
	}
	return s.transport.Disconnect()
}

func (s *SSH) run(ctx context.Context, job *Job, cfg Configuration) (*Result, error) {
	if s.transport == nil {
		return nil, fmt.Errorf("ssh scheduler has no remote host configured")
	}
	log := s.logger.WithField("job", job.Name)
	res := &Result{JobName: job.Name, Hostname: s.host, Start: time.Now()}

	if cfg.DryRun {
		log.WithField("command", job.CommandLine()).Info("dry run")
		res.End = res.Start
		return res, nil
	}

	if err := s.transport.Connect(ctx); err != nil {
		var terr *sshtransport.TransportError
		if errors.As(err, &terr) && terr.Temporary() {
			return nil, engine.NewRecoverableError(fmt.Sprintf("remote host %s is unreachable", s.host), err)
		}
		return nil, err
	}

	script := path.Join(s.stagingDir, fmt.Sprintf("mio-%s.sh", uuid.NewString()))
	if err := s.transport.WriteFile(ctx, script, []byte(jobScript(job)), 0700); err != nil {
		return nil, fmt.Errorf("failed to stage job %s: %w", job.Name, err)
	}
	defer func() {
		if err := s.transport.Remove(context.Background(), script); err != nil {
			log.WithError(err).Warn("failed to remove staged script")
		}
	}()

	log.WithField("script", script).Debug("running staged job")
	out, err := s.transport.Execute(ctx, sshtransport.ExecRequest{Command: "sh " + sshtransport.ShellQuote(script)}, cfg.output(), cfg.output())
	if out != nil {
		res.Stdout = out.Stdout
		res.Stderr = out.Stderr
		res.ReturnCode = out.ExitCode
	}
	res.End = time.Now()
	if err != nil {
		return res, err
	}
	return res, nil
}

// jobScript renders job as a POSIX shell script.
func jobScript(job *Job) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	if job.WorkingDir != "" {
		fmt.Fprintf(&b, "cd %s || exit 1\n", sshtransport.ShellQuote(job.WorkingDir))
	}
	if job.PathPrefix != "" || job.PathSuffix != "" {
		b.WriteString("PATH=")
		if job.PathPrefix != "" {
			b.WriteString(sshtransport.ShellQuote(job.PathPrefix) + ":")
		}
		b.WriteString(`"$PATH"`)
		if job.PathSuffix != "" {
			b.WriteString(":" + sshtransport.ShellQuote(job.PathSuffix))
		}
		b.WriteString("\nexport PATH\n")
	}

	keys := make([]string, 0, len(job.Env))
	for k := range job.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\nexport %s\n", k, sshtransport.ShellQuote(job.Env[k]), k)
	}

	b.WriteString("exec " + sshtransport.ShellQuote(job.Binary))
	for _, arg := range job.Args {
		b.WriteString(" " + sshtransport.ShellQuote(arg))
	}
	b.WriteString("\n")
	return b.String()
}
