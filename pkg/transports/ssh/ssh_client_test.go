package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/mooreio/mio/pkg/transports/ssh/sshtest"
)

// newTestClient connects a password-authenticated client to server.
func newTestClient(t *testing.T, server *sshtest.Server) *SSHClient {
	t.Helper()

	config := DefaultConfig(server.Host, sshtest.User)
	config.Port = server.Port
	config.AuthMethod = AuthMethodPassword
	config.Password = sshtest.Password
	config.StrictHostKeyChecking = false
	config.ConnectionTimeout = 5 * time.Second

	client, err := NewSSHClient(config, nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Disconnect() })
	return client
}

// writeTestKey writes a fresh ED25519 private key and returns its path.
func writeTestKey(t *testing.T) string {
	t.Helper()

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	pemBlock, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(pemBlock), 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
	return keyPath
}

func TestSSHClientConnect(t *testing.T) {
	server := sshtest.NewServer(t)
	client := newTestClient(t, server)

	if !client.IsConnected() {
		t.Error("Expected client to be connected")
	}

	info := client.GetConnectionInfo()
	if info.Host != server.Host {
		t.Errorf("Expected host '%s', got '%s'", server.Host, info.Host)
	}
	if info.User != sshtest.User {
		t.Errorf("Expected user '%s', got '%s'", sshtest.User, info.User)
	}
	if info.ConnectedAt.IsZero() {
		t.Error("Expected a connection time")
	}
}

func TestSSHClientWrongPassword(t *testing.T) {
	server := sshtest.NewServer(t)

	config := DefaultConfig(server.Host, sshtest.User)
	config.Port = server.Port
	config.AuthMethod = AuthMethodPassword
	config.Password = "wrong"
	config.StrictHostKeyChecking = false

	client, err := NewSSHClient(config, nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	err = client.Connect(context.Background())
	if err == nil {
		t.Fatal("Expected connect to fail")
	}
	var terr *TransportError
	if !asTransportError(err, &terr) || terr.Op != "connect" {
		t.Fatalf("Expected a connect TransportError, got %v", err)
	}
	if !terr.IsAuthError || terr.IsTemporary {
		t.Errorf("Expected a permanent authentication error, got %+v", terr)
	}
	if client.IsConnected() {
		t.Error("Expected client to stay disconnected")
	}
}

func TestSSHClientConnectCancelled(t *testing.T) {
	server := sshtest.NewServer(t)

	config := DefaultConfig(server.Host, sshtest.User)
	config.Port = server.Port
	config.AuthMethod = AuthMethodPassword
	config.Password = sshtest.Password
	config.StrictHostKeyChecking = false

	client, err := NewSSHClient(config, nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = client.Connect(ctx)
	var terr *TransportError
	if !asTransportError(err, &terr) || !terr.IsTemporary {
		t.Errorf("Expected a temporary connect error, got %v", err)
	}
	if client.IsConnected() {
		t.Error("Expected client to stay disconnected")
	}
}

func TestSSHClientHealthCheck(t *testing.T) {
	server := sshtest.NewServer(t)
	client := newTestClient(t, server)

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check failed: %v", err)
	}
}

func TestSSHClientDisconnect(t *testing.T) {
	server := sshtest.NewServer(t)
	client := newTestClient(t, server)

	if err := client.Disconnect(); err != nil {
		t.Errorf("disconnect failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("Expected client to be disconnected")
	}
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("Expected health check to fail once disconnected")
	}
	if _, err := client.Execute(context.Background(), ExecRequest{Command: "true"}, nil, nil); err == nil {
		t.Error("Expected execute to fail once disconnected")
	}
}

func TestSSHClientKeyBasedAuth(t *testing.T) {
	server := sshtest.NewServer(t)

	config := DefaultConfig(server.Host, sshtest.User)
	config.Port = server.Port
	config.PrivateKeyPath = writeTestKey(t)
	config.StrictHostKeyChecking = false

	client, err := NewSSHClient(config, nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect with key auth: %v", err)
	}
	defer client.Disconnect()

	if !client.IsConnected() {
		t.Error("Expected client to be connected")
	}
}
