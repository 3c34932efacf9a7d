// Package openrouter is a client for an OpenRouter-compatible chat
// completions endpoint.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/shubham07069/chatgod/internal/apperr"
	"github.com/shubham07069/chatgod/internal/logging"
	"github.com/shubham07069/chatgod/internal/metrics"
)

const (
	DefaultURL     = "https://openrouter.ai/api/v1"
	DefaultTimeout = 60 * time.Second

	// Responses larger than this are rejected.
	maxResponseSize = 4 << 20
	// Upstream error bodies are truncated to this length.
	maxErrorBody = 512
)

// Message is one chat message in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type Client struct {
	baseURL string
	apiKey  string
	referer string
	title   string
	http    *http.Client
	logger  *zap.Logger
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter uses
// to attribute traffic.
func WithAttribution(referer, title string) Option {
	return func(c *Client) { c.referer, c.title = referer, title }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultURL,
		apiKey:  apiKey,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   DefaultTimeout,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends the request and returns the first choice's content. Any
// non-200 response is returned as *apperr.UpstreamError.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(httpReq)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.UpstreamDuration.WithLabelValues(req.Model, "error").Observe(time.Since(start).Seconds())
		return "", fmt.Errorf("completion request for %s: %w", req.Model, err)
	}
	defer resp.Body.Close()
	metrics.UpstreamDuration.WithLabelValues(req.Model, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Completion request failed",
			zap.String("model", req.Model),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", time.Since(start)))
		return "", &apperr.UpstreamError{Model: req.Model, Status: resp.StatusCode, Body: truncate(string(data), maxErrorBody)}
	}

	var out completionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &apperr.UpstreamError{Model: req.Model, Status: resp.StatusCode, Body: "malformed response: " + err.Error()}
	}
	if len(out.Choices) == 0 {
		return "", &apperr.UpstreamError{Model: req.Model, Status: resp.StatusCode, Body: "response has no choices"}
	}
	c.logger.Debug("Completion request succeeded", zap.String("model", req.Model), zap.Duration("duration", time.Since(start)))
	return out.Choices[0].Message.Content, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
}

// IsUpstream reports whether err came back from the completion API rather
// than the transport.
func IsUpstream(err error) bool {
	var u *apperr.UpstreamError
	return errors.As(err, &u)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
