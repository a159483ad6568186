package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codegrader/internal/judge/model"
	appErr "codegrader/pkg/errors"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 4 << 20
)

// Config configures the judge HTTP client.
type Config struct {
	BaseURL   string        `yaml:"baseURL"`
	AuthToken string        `yaml:"authToken"`
	Timeout   time.Duration `yaml:"timeout"`

	// RapidAPIKey/RapidAPIHost are sent when the judge is reached through RapidAPI.
	RapidAPIKey  string `yaml:"rapidAPIKey"`
	RapidAPIHost string `yaml:"rapidAPIHost"`
}

// Client talks to a Judge0-compatible API.
// Every failure is returned as a retryable JudgeUnavailable error.
type Client struct {
	baseURL    string
	authToken  string
	rapidKey   string
	rapidHost  string
	httpClient *http.Client
}

// New builds a client. httpClient may be nil, in which case one with cfg.Timeout is created.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("judge baseURL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid judge baseURL: %w", err)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    base,
		authToken:  cfg.AuthToken,
		rapidKey:   cfg.RapidAPIKey,
		rapidHost:  cfg.RapidAPIHost,
		httpClient: httpClient,
	}, nil
}

type submitResponse struct {
	Token string `json:"token"`
}

// Submit creates one asynchronous job and returns its token.
func (c *Client) Submit(ctx context.Context, req model.JobRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "encode judge request failed")
	}
	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/submissions?base64_encoded=false&wait=false", body, &resp, "submit"); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Token) == "" {
		return "", appErr.New(appErr.JudgeBadResponse).WithMessage("judge returned no token")
	}
	return resp.Token, nil
}

// Get fetches the current result of one job.
func (c *Client) Get(ctx context.Context, token string) (model.JudgeResult, error) {
	var result model.JudgeResult
	path := "/submissions/" + url.PathEscape(token) + "?base64_encoded=false"
	if err := c.do(ctx, http.MethodGet, path, nil, &result, "fetch"); err != nil {
		return model.JudgeResult{}, err
	}
	if result.Token == "" {
		result.Token = token
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}, op string) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "build judge request failed")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
	}
	if c.rapidKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.rapidKey)
		if c.rapidHost != "" {
			req.Header.Set("X-RapidAPI-Host", c.rapidHost)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return appErr.JudgeUnavailableError(err, op)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return appErr.JudgeUnavailableError(err, op)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return appErr.JudgeUnavailableError(
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(payload), 256)), op,
		).WithDetail("status", resp.StatusCode)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return appErr.Wrapf(err, appErr.JudgeBadResponse, "decode judge %s response failed", op)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
