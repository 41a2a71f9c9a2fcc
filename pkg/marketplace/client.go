// Package marketplace is the client of the Moore.io IP marketplace, a JSON over
// HTTP service used to authenticate, find, fetch and publish IPs.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mooreio/mio/pkg/telemetry"
)

// DefaultURL is the production marketplace.
const DefaultURL = "https://mooreio.com/api"

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *telemetry.Logger
	Tracer  *telemetry.Tracer
}

// Client calls the marketplace.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *telemetry.Logger
	tracer     *telemetry.Tracer
}

// Error is returned for non-2xx responses.
type Error struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNopLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: cfg.Logger.NewComponentLogger("marketplace"),
		tracer: cfg.Tracer,
	}
}

// BaseURL returns the marketplace root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken sets the bearer token sent with every call.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Call sends payload as JSON to endpoint and decodes the response into out, when not nil.
func (c *Client) Call(ctx context.Context, method, endpoint string, payload, out any) error {
	ctx, span := c.tracer.StartSpan(ctx, "marketplace."+endpoint)
	defer span.End()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(endpoint, "/"), body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.WithField("endpoint", endpoint).Debug("calling marketplace")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.tracer.RecordError(span, err)
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		callErr := &Error{
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
		c.tracer.RecordError(span, callErr)
		return callErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// Authenticate exchanges credentials for a token. The token is kept for later calls.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	var resp TokenResponse
	if err := c.Call(ctx, http.MethodPost, EndpointAuthToken, TokenRequest{Username: username, Password: password}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("marketplace returned an empty token")
	}
	c.token = resp.Token
	return resp.Token, nil
}
