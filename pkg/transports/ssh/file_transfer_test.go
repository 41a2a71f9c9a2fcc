package ssh

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mooreio/mio/pkg/transports/ssh/sshtest"
)

func sshtestServer(t *testing.T) *sshtest.Server {
	return sshtest.NewServer(t)
}

func TestWriteFile(t *testing.T) {
	client := newTestClient(t, sshtestServer(t))
	remote := filepath.Join(t.TempDir(), "stage", "job.sh")

	if err := client.WriteFile(context.Background(), remote, []byte("#!/bin/sh\necho staged\n"), 0755); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	info, err := os.Stat(remote)
	if err != nil {
		t.Fatalf("Expected remote file to exist: %v", err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("Expected mode 0755, got %v", info.Mode().Perm())
	}

	res, err := client.Execute(context.Background(), ExecRequest{Command: remote}, nil, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.Stdout != "staged" {
		t.Errorf("Expected staged script output, got '%s'", res.Stdout)
	}

	if err := client.Remove(context.Background(), remote); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := os.Stat(remote); !os.IsNotExist(err) {
		t.Errorf("Expected remote file to be removed, got %v", err)
	}
}

func TestUploadFile(t *testing.T) {
	client := newTestClient(t, sshtestServer(t))
	local := filepath.Join(t.TempDir(), "tb.f")
	if err := os.WriteFile(local, []byte("+incdir+src\n"), 0644); err != nil {
		t.Fatal(err)
	}
	remote := filepath.Join(t.TempDir(), "tb.f")

	if err := client.UploadFile(context.Background(), local, remote, 0644); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	data, err := os.ReadFile(remote)
	if err != nil {
		t.Fatalf("Expected uploaded file: %v", err)
	}
	if string(data) != "+incdir+src\n" {
		t.Errorf("Expected identical content, got %q", data)
	}

	if err := client.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing"), remote, 0644); err == nil {
		t.Error("Expected an error for a missing local file")
	}
}
