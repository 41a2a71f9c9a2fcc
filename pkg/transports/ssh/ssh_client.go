package ssh

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/mooreio/mio/pkg/telemetry"
)

// SSHClient implements Transport over a single SSH connection. Every command
// and every SFTP operation opens its own session on that connection.
type SSHClient struct {
	config *Config
	logger *telemetry.Logger

	client      *ssh.Client
	authCloser  io.Closer
	connMu      sync.RWMutex
	isConnected bool
	connectedAt time.Time
	lastUsedAt  time.Time
}

var _ Transport = (*SSHClient)(nil)

// NewSSHClient creates a new SSH transport client.
func NewSSHClient(config *Config, logger *telemetry.Logger) (*SSHClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &SSHClient{
		config: config,
		logger: logger.NewComponentLogger("ssh").WithField("host", config.Address()),
	}, nil
}

// Connect establishes the connection. Cancelling ctx aborts both the dial
// and the SSH handshake.
func (c *SSHClient) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.isConnected && c.client != nil {
		if err := c.healthCheckInternal(); err == nil {
			return nil
		}
		c.logger.Warn("existing connection is dead, reconnecting")
		c.closeLocked()
	}

	clientConfig, authCloser, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	addr := c.config.Address()
	c.logger.Debug("establishing SSH connection")

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		authCloser.Close()
		return &TransportError{Op: "connect", Err: err, IsTemporary: true}
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if !stop() {
		err = ctx.Err()
	}
	if err != nil {
		conn.Close()
		authCloser.Close()
		auth := isAuthFailure(err)
		return &TransportError{Op: "connect", Err: err, IsTemporary: !auth, IsAuthError: auth}
	}

	c.client = ssh.NewClient(sshConn, chans, reqs)
	c.authCloser = authCloser
	c.isConnected = true
	c.connectedAt = time.Now()
	c.lastUsedAt = c.connectedAt
	c.logger.Debug("SSH connection established")
	return nil
}

// isAuthFailure reports whether the handshake failed on credentials.
func isAuthFailure(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unable to authenticate")
}

// Disconnect closes the SSH connection and releases all resources.
func (c *SSHClient) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.isConnected || c.client == nil {
		return nil
	}
	c.logger.Debug("closing SSH connection")
	if err := c.closeLocked(); err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// closeLocked must be called with connMu held.
func (c *SSHClient) closeLocked() error {
	var err error
	if c.client != nil {
		err = c.client.Close()
	}
	if c.authCloser != nil {
		c.authCloser.Close()
	}
	c.client = nil
	c.authCloser = nil
	c.isConnected = false
	return err
}

// IsConnected returns true if the transport has an active connection.
func (c *SSHClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.isConnected
}

// HealthCheck verifies the connection is still alive and responsive.
func (c *SSHClient) HealthCheck(ctx context.Context) error {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	if !c.isConnected || c.client == nil {
		return &TransportError{
			Op:  "healthcheck",
			Err: fmt.Errorf("not connected"),
		}
	}

	return c.healthCheckInternal()
}

// healthCheckInternal must be called with connMu held.
func (c *SSHClient) healthCheckInternal() error {
	session, err := c.client.NewSession()
	if err != nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         err,
			IsTemporary: true,
		}
	}
	defer session.Close()

	if err := session.Run("true"); err != nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         err,
			IsTemporary: true,
		}
	}
	return nil
}

// GetConnectionInfo returns information about the current connection.
func (c *SSHClient) GetConnectionInfo() ConnectionInfo {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	return ConnectionInfo{
		Host:         c.config.Host,
		Port:         c.config.Port,
		User:         c.config.User,
		ConnectedAt:  c.connectedAt,
		LastActivity: c.lastUsedAt,
	}
}

// getClient returns the underlying SSH client.
func (c *SSHClient) getClient() (*ssh.Client, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.isConnected || c.client == nil {
		return nil, &TransportError{
			Op:  "get-client",
			Err: fmt.Errorf("not connected"),
		}
	}

	c.lastUsedAt = time.Now()
	return c.client, nil
}
