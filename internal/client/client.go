// Package client sends signed deploy requests to a rollout daemon.
package client

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

	"rollout/internal/deployment"
	"rollout/internal/webhook"
)

const (
	// DefaultTimeout bounds a whole deploy round trip, including the
	// command run on the daemon.
	DefaultTimeout = 15 * time.Minute

	// StatusCommandFailed mirrors the daemon's status for a non-zero exit.
	StatusCommandFailed = 444

	maxResponseBytes = 64 << 20
)

var (
	// ErrUnauthorized is returned when the daemon rejects the token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBadRequest is returned when the daemon rejects the request body.
	ErrBadRequest = errors.New("bad request")
)

// CommandFailedError reports a deploy command that exited non-zero on the
// daemon.
type CommandFailedError struct {
	Code   int
	Stdout string
	Stderr string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("deploy command exited with code %d", e.Code)
}

// StatusError reports any other unexpected response status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// Client posts signed deploy requests to a single webhook URL.
type Client struct {
	url    string
	signer *webhook.Signer
	http   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithSigner replaces the signer built from the secret.
func WithSigner(s *webhook.Signer) Option {
	return func(c *Client) {
		c.signer = s
	}
}

// New creates a client for the webhook at url.
func New(url, secret string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		signer: webhook.NewSigner(secret),
		http:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deploy signs req, posts it and interprets the response.
//
// A non-zero exit on the daemon returns the output together with a
// *CommandFailedError so callers can print it.
func (c *Client) Deploy(ctx context.Context, req *webhook.DeployRequest) (*deployment.CommandResult, error) {
	body, token, err := c.signer.Sign(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", webhook.BearerPrefix+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var result deployment.CommandResult
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return &result, nil

	case StatusCommandFailed:
		var failed deployment.CommandError
		if err := json.Unmarshal(respBody, &failed); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return &deployment.CommandResult{Stdout: failed.Stdout, Stderr: failed.Stderr},
			&CommandFailedError{Code: failed.Code, Stdout: failed.Stdout, Stderr: failed.Stderr}

	case http.StatusUnauthorized:
		return nil, ErrUnauthorized

	case http.StatusBadRequest:
		return nil, ErrBadRequest

	default:
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
}
