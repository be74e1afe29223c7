// Package client talks to a running interpctl daemon.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProjectCookie carries the project id on every request.
const ProjectCookie = "projectID"

// DefaultBaseURL points at a local daemon with the default base path.
const DefaultBaseURL = "http://localhost:8080/api/interpreter"

// Client provides HTTP client functionality to communicate with the interpctl daemon.
type Client struct {
	baseURL   string
	projectID int64
	client    *http.Client
	logger    *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL   string
	ProjectID int64
	// Timeout bounds every request. Start waits for the interpreter, so keep it above
	// the daemon's lifecycle.start_timeout.
	Timeout  time.Duration
	Logger   *slog.Logger
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool
	CACert     string // CA certificate file path
	ClientCert string
	ClientKey  string
	ServerName string
	SkipVerify bool
}

// APIError is a non-2xx answer of the daemon.
type APIError struct {
	Code    int
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error: HTTP %d %s", e.Code, e.Status)
	}
	return fmt.Sprintf("API error: HTTP %d %s: %s", e.Code, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == http.StatusNotFound
}

// IsTimeout reports whether the daemon gave up waiting on a lifecycle operation.
func IsTimeout(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == http.StatusGatewayTimeout
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 11 * time.Minute,
	}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 11 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		projectID: config.ProjectID,
		logger:    config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "", nil, nil)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return true
}

// Registered lists the interpreter types keyed by "group.name".
func (c *Client) Registered(ctx context.Context) (map[string]Registered, error) {
	var out map[string]Registered
	err := c.do(ctx, http.MethodGet, "", nil, &out)
	return out, err
}

// Settings lists the settings of the client's project.
func (c *Client) Settings(ctx context.Context) ([]Setting, error) {
	var out []Setting
	err := c.do(ctx, http.MethodGet, "/setting", nil, &out)
	return out, err
}

func (c *Client) CreateSetting(ctx context.Context, req SettingRequest) (Setting, error) {
	var out Setting
	err := c.do(ctx, http.MethodPost, "/setting", req, &out)
	return out, err
}

// UpdateSetting replaces the properties of a setting; the daemon restarts its process.
func (c *Client) UpdateSetting(ctx context.Context, id string, req SettingRequest) (Setting, error) {
	var out Setting
	err := c.do(ctx, http.MethodPut, "/setting/"+url.PathEscape(id), req, &out)
	return out, err
}

func (c *Client) RemoveSetting(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/setting/"+url.PathEscape(id), nil, nil)
}

// RestartSetting tears the interpreter process down without waiting.
func (c *Client) RestartSetting(ctx context.Context, id string) (Setting, error) {
	var out Setting
	err := c.do(ctx, http.MethodPut, "/setting/restart/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Start launches the interpreter and blocks until the daemon reports it started.
func (c *Client) Start(ctx context.Context, id string) (Status, error) {
	var out Status
	path := "/" + strconv.FormatInt(c.projectID, 10) + "/start/" + url.PathEscape(id)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Stop blocks until the interpreter process is gone.
func (c *Client) Stop(ctx context.Context, id string) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/stop/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Statuses reports the running state of each interpreter group of the project.
func (c *Client) Statuses(ctx context.Context) (map[string]Status, error) {
	var out map[string]Status
	err := c.do(ctx, http.MethodGet, "/interpretersWithStatus", nil, &out)
	return out, err
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}

	tlsConfig.RootCAs = caCertPool
	return nil
}

// do sends in as JSON (when non-nil), unwraps the response envelope and decodes its
// body into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: ProjectCookie, Value: strconv.FormatInt(c.projectID, 10)})

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", u)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Code: resp.StatusCode, Status: env.Status, Message: env.Message}
		if decodeErr != nil {
			apiErr.Status = http.StatusText(resp.StatusCode)
		}
		c.logger.Debug("API request failed", "error", apiErr, "url", u)
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out != nil && len(env.Body) > 0 {
		if err := json.Unmarshal(env.Body, out); err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
	}
	return nil
}
