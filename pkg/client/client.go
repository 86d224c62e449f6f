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
	"time"
)

// Client talks to a nexus daemon over its HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	session string
}

// Config holds client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Logger    *slog.Logger
	TLS       *TLSClientConfig
	Insecure  bool   // Skip TLS verification
	SessionID string // Sent as a bearer token when set
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool   // Enable TLS
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Message string
	// PID is set when the daemon created a process before failing.
	PID int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
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
		baseURL: config.BaseURL,
		logger:  config.Logger,
		session: config.SessionID,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// SetSession changes the session sent with subsequent requests.
func (c *Client) SetSession(id string) { c.session = id }

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return true
}

// Login authenticates and keeps the session for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var s Session
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/login", body, &s); err != nil {
		return Session{}, err
	}
	c.session = s.ID
	return s, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/logout", nil, nil)
	c.session = ""
	return err
}

func (c *Client) Spawn(ctx context.Context, req SpawnRequest) (SpawnResponse, error) {
	c.logger.Debug("Spawning process", "name", req.Name, "priority", req.Priority)
	var out SpawnResponse
	err := c.do(ctx, http.MethodPost, "/processes", req, &out)
	return out, err
}

func (c *Client) Processes(ctx context.Context) ([]Process, error) {
	var out []Process
	err := c.do(ctx, http.MethodGet, "/processes", nil, &out)
	return out, err
}

func (c *Client) Process(ctx context.Context, pid int) (ProcessInfo, error) {
	var out ProcessInfo
	err := c.do(ctx, http.MethodGet, "/processes/"+strconv.Itoa(pid), nil, &out)
	return out, err
}

// Kill terminates pid; with reclaim its pages are freed too.
func (c *Client) Kill(ctx context.Context, pid int, reclaim bool) (MemoryResponse, error) {
	var out MemoryResponse
	path := "/processes/" + strconv.Itoa(pid)
	if reclaim {
		path += "?reclaim=true"
	}
	err := c.do(ctx, http.MethodDelete, path, nil, &out)
	return out, err
}

func (c *Client) Allocate(ctx context.Context, pid, size int) (MemoryResponse, error) {
	var out MemoryResponse
	err := c.do(ctx, http.MethodPost, "/processes/"+strconv.Itoa(pid)+"/memory", map[string]int{"size": size}, &out)
	return out, err
}

func (c *Client) Free(ctx context.Context, pid int) (MemoryResponse, error) {
	var out MemoryResponse
	err := c.do(ctx, http.MethodDelete, "/processes/"+strconv.Itoa(pid)+"/memory", nil, &out)
	return out, err
}

func (c *Client) Tick(ctx context.Context, n int) ([]TickResult, error) {
	if n < 1 {
		n = 1
	}
	var out []TickResult
	err := c.do(ctx, http.MethodPost, "/tick?n="+strconv.Itoa(n), nil, &out)
	return out, err
}

func (c *Client) Memory(ctx context.Context) (MemoryReport, error) {
	var out MemoryReport
	err := c.do(ctx, http.MethodGet, "/memory", nil, &out)
	return out, err
}

func (c *Client) Scheduler(ctx context.Context) (SchedulerView, error) {
	var out SchedulerView
	err := c.do(ctx, http.MethodGet, "/scheduler", nil, &out)
	return out, err
}

// Stats returns the daemon's statistics document as decoded JSON.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

func (c *Client) Files(ctx context.Context, dir string) ([]FileEntry, error) {
	var out []FileEntry
	err := c.do(ctx, http.MethodGet, "/files?dir="+url.QueryEscape(dir), nil, &out)
	return out, err
}

func (c *Client) CreateFile(ctx context.Context, name, content string) (string, error) {
	var out struct {
		Path string `json:"path"`
	}
	err := c.do(ctx, http.MethodPost, "/files", map[string]string{"name": name, "content": content}, &out)
	return out.Path, err
}

func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	err := c.do(ctx, http.MethodGet, "/files/content?path="+url.QueryEscape(path), nil, &out)
	return out.Content, err
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

// do sends body as JSON (when non-nil) and decodes a 2xx response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" {
		req.Header.Set("Authorization", "Bearer "+c.session)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", req.URL.String())
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	var er ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	c.logger.Debug("API request failed", "error", er.Error, "status", resp.StatusCode)
	return &APIError{Status: resp.StatusCode, Message: er.Error, PID: er.PID}
}
