package ssh

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func asTransportError(err error, target **TransportError) bool {
	return errors.As(err, target)
}

func TestExecute(t *testing.T) {
	client := newTestClient(t, sshtestServer(t))

	tests := []struct {
		name     string
		req      ExecRequest
		stdout   string
		stderr   string
		exitCode int
	}{
		{
			name:   "simple echo",
			req:    ExecRequest{Command: "echo test"},
			stdout: "test",
		},
		{
			name:   "stderr output",
			req:    ExecRequest{Command: "echo error >&2"},
			stderr: "error",
		},
		{
			name:     "non-zero exit",
			req:      ExecRequest{Command: "exit 3"},
			exitCode: 3,
		},
		{
			name:   "environment",
			req:    ExecRequest{Command: "echo \"$MIO_SEED-$MIO_TEST\"", Env: map[string]string{"MIO_SEED": "42", "MIO_TEST": "it's"}},
			stdout: "42-it's",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := client.Execute(context.Background(), tt.req, nil, nil)
			if err != nil {
				t.Fatalf("execute failed: %v", err)
			}
			if res.Stdout != tt.stdout {
				t.Errorf("Expected stdout '%s', got '%s'", tt.stdout, res.Stdout)
			}
			if res.Stderr != tt.stderr {
				t.Errorf("Expected stderr '%s', got '%s'", tt.stderr, res.Stderr)
			}
			if res.ExitCode != tt.exitCode {
				t.Errorf("Expected exit code %d, got %d", tt.exitCode, res.ExitCode)
			}
			if res.FinishedAt.Before(res.StartedAt) {
				t.Error("Expected finish time after start time")
			}
		})
	}
}

func TestExecuteInDirectoryWithTee(t *testing.T) {
	client := newTestClient(t, sshtestServer(t))
	dir := t.TempDir()

	var out bytes.Buffer
	res, err := client.Execute(context.Background(), ExecRequest{Command: "pwd", Dir: dir}, &out, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.Stdout != dir {
		t.Errorf("Expected command to run in %s, got %s", dir, res.Stdout)
	}
	if out.String() != dir+"\n" {
		t.Errorf("Expected output copied to the writer, got %q", out.String())
	}
}

func TestShellQuote(t *testing.T) {
	tests := map[string]string{
		"plain":      "'plain'",
		"with space": "'with space'",
		"it's":       `'it'\''s'`,
		"":           "''",
	}
	for in, want := range tests {
		if got := ShellQuote(in); got != want {
			t.Errorf("ShellQuote(%q): expected %s, got %s", in, want, got)
		}
	}
}

func TestShellCommand(t *testing.T) {
	req := ExecRequest{Command: "dsim -help", Dir: "/work", Env: map[string]string{"B": "2", "A": "1"}}
	want := "cd '/work' && export A='1' && export B='2' && dsim -help"
	if got := req.shellCommand(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
