package ssh

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/mooreio/mio/pkg/config"
)

// AuthMethod selects how mio authenticates with a compute host.
type AuthMethod string

const (
	// AuthMethodKey reads a private key file.
	AuthMethodKey AuthMethod = "key"

	// AuthMethodAgent asks the agent listening on SSH_AUTH_SOCK.
	AuthMethodAgent AuthMethod = "agent"

	// AuthMethodPassword is only meant for test servers.
	AuthMethodPassword AuthMethod = "password"
)

// AgentSocketEnv locates the ssh-agent socket.
const AgentSocketEnv = "SSH_AUTH_SOCK"

// defaultKeys are tried in order when key authentication has no key path.
var defaultKeys = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// Config describes the connection to the host running remote simulation jobs.
type Config struct {
	Host string
	Port int
	User string

	AuthMethod AuthMethod

	// PrivateKeyPath and PrivateKeyPassphrase are used with AuthMethodKey.
	PrivateKeyPath       string
	PrivateKeyPassphrase string

	// Password is used with AuthMethodPassword.
	Password string

	// KnownHostsPath lists the accepted host keys. With
	// StrictHostKeyChecking off, any host key is accepted.
	KnownHostsPath        string
	StrictHostKeyChecking bool

	ConnectionTimeout time.Duration
}

// DefaultConfig returns a key-authenticated Config for user@host checked
// against ~/.ssh/known_hosts.
func DefaultConfig(host string, user string) *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Host:                  host,
		Port:                  22,
		User:                  user,
		AuthMethod:            AuthMethodKey,
		KnownHostsPath:        filepath.Join(home, ".ssh", "known_hosts"),
		StrictHostKeyChecking: true,
		ConnectionTimeout:     30 * time.Second,
	}
}

// ConfigFromTarget translates the [scheduler.ssh] section of mio.toml. The
// agent is used when no key path is configured and one is running.
func ConfigFromTarget(target config.SSHTarget) *Config {
	user := target.User
	if user == "" {
		user = os.Getenv("USER")
	}
	cfg := DefaultConfig(target.Host, user)
	if target.Port != 0 {
		cfg.Port = target.Port
	}
	switch {
	case target.KeyPath != "":
		cfg.PrivateKeyPath = target.KeyPath
	case os.Getenv(AgentSocketEnv) != "":
		cfg.AuthMethod = AuthMethodAgent
	}
	return cfg
}

// Validate checks the configuration. Key authentication without a key path
// settles on the first of the usual keys found under ~/.ssh.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}

	switch c.AuthMethod {
	case AuthMethodKey:
		if c.PrivateKeyPath == "" {
			c.PrivateKeyPath = findDefaultKey()
		}
		if c.PrivateKeyPath == "" {
			return fmt.Errorf("private key path is required for key authentication and no default key found")
		}
		if _, err := os.Stat(c.PrivateKeyPath); err != nil {
			return fmt.Errorf("private key file not found: %s", c.PrivateKeyPath)
		}
	case AuthMethodAgent:
		if os.Getenv(AgentSocketEnv) == "" {
			return fmt.Errorf("agent authentication requires %s", AgentSocketEnv)
		}
	case AuthMethodPassword:
		if c.Password == "" {
			return fmt.Errorf("password is required for password authentication")
		}
	default:
		return fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
	}
	return nil
}

func findDefaultKey() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range defaultKeys {
		path := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// BuildSSHClientConfig creates the ssh.ClientConfig. The returned closer
// releases the agent connection, if one was opened; it is never nil.
func (c *Config) BuildSSHClientConfig() (*ssh.ClientConfig, io.Closer, error) {
	auth, closer, err := c.authMethods()
	if err != nil {
		return nil, nil, err
	}
	hostKey, err := c.hostKeyCallback()
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         c.ConnectionTimeout,
	}, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (c *Config) authMethods() ([]ssh.AuthMethod, io.Closer, error) {
	switch c.AuthMethod {
	case AuthMethodKey:
		signer, err := c.loadKey()
		if err != nil {
			return nil, nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nopCloser{}, nil

	case AuthMethodAgent:
		sock := os.Getenv(AgentSocketEnv)
		if sock == "" {
			return nil, nil, errors.New(AgentSocketEnv + " is not set")
		}
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to reach ssh-agent: %w", err)
		}
		// signing goes through the agent, so conn stays open with the client
		return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(conn).Signers)}, conn, nil

	case AuthMethodPassword:
		answer := func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = c.Password
			}
			return answers, nil
		}
		return []ssh.AuthMethod{ssh.Password(c.Password), ssh.KeyboardInteractive(answer)}, nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
}

func (c *Config) loadKey() (ssh.Signer, error) {
	data, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	var signer ssh.Signer
	if c.PrivateKeyPassphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(c.PrivateKeyPassphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", c.PrivateKeyPath, err)
	}
	return signer, nil
}

func (c *Config) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if !c.StrictHostKeyChecking || c.KnownHostsPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(c.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return cb, nil
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
