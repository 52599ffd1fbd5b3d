// Package api is the HTTP client for the TechPost REST API. It implements
// engage.AuthGateway and engage.EngagementAPI.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"techpost/internal/config"
	"techpost/internal/engage"
)

// Client talks to one TechPost server.
// This implementation is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     engage.Logger
}

var (
	_ engage.AuthGateway   = (*Client)(nil)
	_ engage.EngagementAPI = (*Client)(nil)
)

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:5000". A zero timeout selects 30 seconds.
func NewClient(baseURL string, timeout time.Duration, logger engage.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// NewClientFromConfig creates a Client from the [api] section.
func NewClientFromConfig(cfg config.APIConfig, logger engage.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api base_url is required")
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	return NewClient(cfg.BaseURL, timeout, logger), nil
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// statusError is a non-2xx answer. Message is the server's "error" field.
type statusError struct {
	StatusCode int
	Message    string
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, cred engage.Credential, out any) error {
	return c.do(ctx, http.MethodGet, path, cred, nil, out)
}

func (c *Client) post(ctx context.Context, path string, cred engage.Credential, body, out any) error {
	return c.do(ctx, http.MethodPost, path, cred, body, out)
}

// do sends one request. A non-empty cred is sent verbatim in the
// Authorization header; the server does not accept a "Bearer" prefix.
// Non-2xx answers are returned as *statusError.
func (c *Client) do(ctx context.Context, method, path string, cred engage.Credential, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if cred != "" {
		req.Header.Set("Authorization", string(cred))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("api request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(respBody, &eb)
		return &statusError{StatusCode: resp.StatusCode, Message: eb.Error}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// gatedError maps a failure of a credential-gated call: 401 means the
// credential was rejected, everything else is a remote failure.
func gatedError(op string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusUnauthorized {
			return &engage.RemoteError{Op: op, StatusCode: se.StatusCode, Message: se.Message, Err: engage.ErrSessionExpired}
		}
		return &engage.RemoteError{Op: op, StatusCode: se.StatusCode, Message: se.Message, Err: engage.ErrRemoteFailure}
	}
	return remoteError(op, err)
}

// remoteError maps any failure to ErrRemoteFailure.
func remoteError(op string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return &engage.RemoteError{Op: op, StatusCode: se.StatusCode, Message: se.Message, Err: engage.ErrRemoteFailure}
	}
	return &engage.RemoteError{Op: op, Err: fmt.Errorf("%w: %v", engage.ErrRemoteFailure, err)}
}
