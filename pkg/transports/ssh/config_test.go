package ssh

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mooreio/mio/pkg/config"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("farm01", "jdoe")

	if config.Host != "farm01" {
		t.Errorf("Expected host 'farm01', got '%s'", config.Host)
	}
	if config.Port != 22 {
		t.Errorf("Expected port 22, got %d", config.Port)
	}
	if config.AuthMethod != AuthMethodKey {
		t.Errorf("Expected auth method 'key', got '%s'", config.AuthMethod)
	}
	if config.ConnectionTimeout != 30*time.Second {
		t.Errorf("Expected connection timeout 30s, got %v", config.ConnectionTimeout)
	}
	if !strings.HasSuffix(config.KnownHostsPath, filepath.Join(".ssh", "known_hosts")) {
		t.Errorf("Expected default known_hosts path, got %s", config.KnownHostsPath)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name       string
		modifyFunc func(*Config)
		errorMsg   string
	}{
		{
			name: "valid config",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = "secret"
			},
		},
		{
			name:       "missing host",
			modifyFunc: func(c *Config) { c.Host = "" },
			errorMsg:   "host is required",
		},
		{
			name:       "invalid port",
			modifyFunc: func(c *Config) { c.Port = 0 },
			errorMsg:   "invalid port",
		},
		{
			name:       "missing user",
			modifyFunc: func(c *Config) { c.User = "" },
			errorMsg:   "user is required",
		},
		{
			name: "password auth without password",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = ""
			},
			errorMsg: "password is required",
		},
		{
			name:       "missing key file",
			modifyFunc: func(c *Config) { c.PrivateKeyPath = "/nonexistent/key" },
			errorMsg:   "private key file not found",
		},
		{
			name:       "unknown auth method",
			modifyFunc: func(c *Config) { c.AuthMethod = "agent" },
			errorMsg:   "unsupported auth method",
		},
		{
			name: "invalid connection timeout",
			modifyFunc: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = "secret"
				c.ConnectionTimeout = 0
			},
			errorMsg: "connection timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig("farm01", "jdoe")
			tt.modifyFunc(config)

			err := config.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing '%s', got nil", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing '%s', got '%v'", tt.errorMsg, err)
			}
		})
	}
}

func TestConfigFromTarget(t *testing.T) {
	t.Setenv("USER", "jdoe")

	t.Run("key path", func(t *testing.T) {
		t.Setenv(AgentSocketEnv, "/tmp/agent.sock")
		cfg := ConfigFromTarget(config.SSHTarget{Host: "farm01", Port: 2200, KeyPath: "/keys/id_farm"})
		if cfg.AuthMethod != AuthMethodKey || cfg.PrivateKeyPath != "/keys/id_farm" {
			t.Errorf("Expected key authentication with /keys/id_farm, got %s %s", cfg.AuthMethod, cfg.PrivateKeyPath)
		}
		if cfg.Port != 2200 {
			t.Errorf("Expected port 2200, got %d", cfg.Port)
		}
		if cfg.User != "jdoe" {
			t.Errorf("Expected user from $USER, got '%s'", cfg.User)
		}
	})

	t.Run("agent", func(t *testing.T) {
		t.Setenv(AgentSocketEnv, "/tmp/agent.sock")
		cfg := ConfigFromTarget(config.SSHTarget{Host: "farm01", User: "sim"})
		if cfg.AuthMethod != AuthMethodAgent {
			t.Errorf("Expected agent authentication, got %s", cfg.AuthMethod)
		}
		if cfg.Port != 22 || cfg.User != "sim" {
			t.Errorf("Expected sim@farm01:22, got %s@%s", cfg.User, cfg.Address())
		}
	})

	t.Run("no agent", func(t *testing.T) {
		t.Setenv(AgentSocketEnv, "")
		cfg := ConfigFromTarget(config.SSHTarget{Host: "farm01"})
		if cfg.AuthMethod != AuthMethodKey {
			t.Errorf("Expected key authentication, got %s", cfg.AuthMethod)
		}
	})
}

func TestAgentValidation(t *testing.T) {
	cfg := DefaultConfig("farm01", "jdoe")
	cfg.AuthMethod = AuthMethodAgent

	t.Setenv(AgentSocketEnv, "")
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), AgentSocketEnv) {
		t.Errorf("Expected an error naming %s, got %v", AgentSocketEnv, err)
	}

	// the socket is only dialed when the connection is built
	sock := filepath.Join(t.TempDir(), "missing.sock")
	t.Setenv(AgentSocketEnv, sock)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if _, _, err := cfg.BuildSSHClientConfig(); err == nil || !strings.Contains(err.Error(), "ssh-agent") {
		t.Errorf("Expected an agent dial error, got %v", err)
	}
}

func TestConfigAddress(t *testing.T) {
	config := DefaultConfig("farm01", "jdoe")
	config.Port = 2222

	if address := config.Address(); address != "farm01:2222" {
		t.Errorf("Expected address 'farm01:2222', got '%s'", address)
	}
}

func TestBuildSSHClientConfig(t *testing.T) {
	t.Run("password authentication", func(t *testing.T) {
		config := DefaultConfig("farm01", "jdoe")
		config.AuthMethod = AuthMethodPassword
		config.Password = "secret"
		config.StrictHostKeyChecking = false

		clientConfig, closer, err := config.BuildSSHClientConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer closer.Close()
		if clientConfig.User != "jdoe" {
			t.Errorf("Expected user 'jdoe', got '%s'", clientConfig.User)
		}
		// password plus keyboard-interactive
		if len(clientConfig.Auth) != 2 {
			t.Errorf("Expected 2 auth methods, got %d", len(clientConfig.Auth))
		}
		if clientConfig.Timeout != 30*time.Second {
			t.Errorf("Expected timeout 30s, got %v", clientConfig.Timeout)
		}
	})

	t.Run("key authentication", func(t *testing.T) {
		keyPath := writeTestKey(t)

		config := DefaultConfig("farm01", "jdoe")
		config.PrivateKeyPath = keyPath
		config.StrictHostKeyChecking = false

		clientConfig, closer, err := config.BuildSSHClientConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer closer.Close()
		if len(clientConfig.Auth) != 1 {
			t.Errorf("Expected 1 auth method, got %d", len(clientConfig.Auth))
		}
	})

	t.Run("garbage key", func(t *testing.T) {
		keyPath := filepath.Join(t.TempDir(), "id_bad")
		if err := os.WriteFile(keyPath, []byte("not a key"), 0600); err != nil {
			t.Fatal(err)
		}

		config := DefaultConfig("farm01", "jdoe")
		config.PrivateKeyPath = keyPath

		if _, _, err := config.BuildSSHClientConfig(); err == nil {
			t.Error("Expected an error for an unparsable key")
		}
	})
}
