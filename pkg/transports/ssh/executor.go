package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Execute runs a command on the remote host.
func (c *SSHClient) Execute(ctx context.Context, req ExecRequest, stdout, stderr io.Writer) (*ExecResult, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = tee(&stdoutBuf, stdout)
	session.Stderr = tee(&stderrBuf, stderr)

	cmd := req.shellCommand()
	log := c.logger.WithField("command", req.Command)
	log.Debug("executing command")

	result := &ExecResult{StartedAt: time.Now()}
	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		result.FinishedAt = time.Now()
		result.ExitCode = -1
		return result, &TransportError{
			Op:  "execute",
			Err: ctx.Err(),
		}
	case err = <-doneChan:
	}

	result.FinishedAt = time.Now()
	result.Stdout = strings.TrimSpace(stdoutBuf.String())
	result.Stderr = strings.TrimSpace(stderrBuf.String())

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	default:
		result.ExitCode = -1
		return result, &TransportError{
			Op:          "execute",
			Err:         err,
			IsTemporary: true,
		}
	}

	log.WithField("exit_code", result.ExitCode).
		WithField("duration", result.Duration().String()).
		Debug("command completed")
	return result, nil
}

// shellCommand prefixes the command with the directory change and the exports.
func (r ExecRequest) shellCommand() string {
	var b strings.Builder
	if r.Dir != "" {
		b.WriteString("cd " + ShellQuote(r.Dir) + " && ")
	}
	keys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("export " + k + "=" + ShellQuote(r.Env[k]) + " && ")
	}
	b.WriteString(r.Command)
	return b.String()
}

// ShellQuote quotes s for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
