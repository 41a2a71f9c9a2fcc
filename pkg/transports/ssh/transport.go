// Package ssh runs jobs on a remote host: commands are executed over an SSH
// session and scripts are staged with SFTP.
package ssh

import (
	"context"
	"io"
	"os"
	"time"
)

// Transport defines the remote operations used by the ssh job scheduler.
type Transport interface {
	// Connect establishes an SSH connection to the remote host.
	// Returns an error if connection fails or authentication is rejected.
	Connect(ctx context.Context) error

	// Disconnect closes the SSH connection and releases all resources.
	Disconnect() error

	// IsConnected returns true if the transport has an active connection.
	IsConnected() bool

	// HealthCheck verifies the connection is still alive and responsive.
	HealthCheck(ctx context.Context) error

	// Execute runs a command on the remote host. Output is captured in the
	// result and also copied to stdout and stderr when they are not nil.
	// A non-zero exit code is not an error.
	Execute(ctx context.Context, req ExecRequest, stdout, stderr io.Writer) (*ExecResult, error)

	// WriteFile creates or replaces a remote file via SFTP, creating parent directories.
	WriteFile(ctx context.Context, remotePath string, data []byte, mode os.FileMode) error

	// UploadFile copies a local file to the remote host via SFTP.
	UploadFile(ctx context.Context, localPath string, remotePath string, mode os.FileMode) error

	// Remove deletes a remote file.
	Remove(ctx context.Context, remotePath string) error

	// GetConnectionInfo returns information about the current connection.
	GetConnectionInfo() ConnectionInfo
}

// ExecRequest is one remote command.
type ExecRequest struct {
	// Command is passed to the remote shell as is.
	Command string

	// Dir, when set, is the directory the command runs in.
	Dir string

	// Env is exported before the command runs.
	Env map[string]string
}

// ConnectionInfo contains details about an active SSH connection.
type ConnectionInfo struct {
	Host         string
	Port         int
	User         string
	ConnectedAt  time.Time
	LastActivity time.Time
}

// ExecResult represents the result of a command execution.
type ExecResult struct {
	// Stdout is the standard output from the command
	Stdout string

	// Stderr is the standard error output from the command
	Stderr string

	// ExitCode is the command's exit code
	ExitCode int

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the total execution time.
func (r *ExecResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec", "upload")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
