// Package client is the REST client for the remote analysis backend.
//
// Responses are returned as raw bytes to the endpoint methods, which pass
// them through the normalize package; nothing here depends on the backend's
// field naming.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/bowlsense/internal/domain/normalize"
	"github.com/okian/bowlsense/pkg/logger"
	"github.com/okian/bowlsense/pkg/metrics"
	"github.com/rs/xid"
	"github.com/sethvargo/go-retry"
)

// HeaderRequestID correlates client logs with backend logs.
const HeaderRequestID = "X-Request-ID"

const maxResponseBytes = 16 << 20

// Authorizer injects credentials and reacts to rejected ones.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
	Unauthorized(ctx context.Context)
}

// Client provides typed access to the analysis backend.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	auth           Authorizer
	log            logger.Logger
	retryMax       uint64
	retryBase      time.Duration
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	maxUploadBytes int64
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBaseURL)
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, base)
	}
	c := &Client{
		baseURL:        strings.TrimRight(trimmed, "/"),
		httpClient:     &http.Client{},
		log:            logger.Nop(),
		retryMax:       DefaultRetryMax,
		retryBase:      DefaultRetryBase,
		requestTimeout: DefaultRequestTimeout,
		uploadTimeout:  DefaultUploadTimeout,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// MaxUploadBytes returns the per-video upload limit.
func (c *Client) MaxUploadBytes() int64 { return c.maxUploadBytes }

type request struct {
	method   string
	path     string
	endpoint string
	// body builds a fresh body per attempt; nil sends none.
	body    func() (io.Reader, string, error)
	timeout time.Duration
	retry   bool
}

func jsonBody(v any) func() (io.Reader, string, error) {
	return func() (io.Reader, string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return bytes.NewReader(b), "application/json", nil
	}
}

// send performs r, retrying transient failures of idempotent requests.
func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	reqID := xid.New().String()
	if !r.retry || c.retryMax == 0 {
		return c.attempt(ctx, r, reqID)
	}

	backoff := retry.WithMaxRetries(c.retryMax, retry.WithJitterPercent(10, retry.NewExponential(c.retryBase)))
	var out []byte
	tries := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if tries > 0 {
			metrics.RecordAPIRetry(r.endpoint)
			c.log.Debug(ctx, "retrying backend request",
				logger.String("endpoint", r.endpoint),
				logger.String("request_id", reqID),
				logger.Int("attempt", tries+1))
		}
		tries++
		b, err := c.attempt(ctx, r, reqID)
		if err != nil {
			if transient(ctx, err) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr *transportError
	return errors.As(err, &netErr)
}

// transportError marks failures that happened before a response arrived.
type transportError struct{ err error }

func (e *transportError) Error() string { return "perform request: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func (c *Client) attempt(ctx context.Context, r request, reqID string) ([]byte, error) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.requestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	contentType := ""
	if r.body != nil {
		var err error
		if reader, contentType, err = r.body(); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, reader)
	if err != nil {
		closeBody(reader)
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, reqID)
	if c.auth != nil {
		if err := c.auth.Authorize(ctx, req); err != nil {
			closeBody(reader)
			return nil, fmt.Errorf("authorize request: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	metrics.RecordAPIRequestDuration(r.endpoint, r.method, elapsed.Seconds())
	if err != nil {
		metrics.RecordAPIRequest(r.endpoint, r.method, "error")
		c.log.Warn(ctx, "backend request failed",
			logger.String("endpoint", r.endpoint),
			logger.String("request_id", reqID),
			logger.Error(err))
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()
	metrics.RecordAPIRequest(r.endpoint, r.method, strconv.Itoa(resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("read response: %w", err)}
	}
	c.log.Debug(ctx, "backend request",
		logger.String("method", r.method),
		logger.String("path", r.path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", elapsed),
		logger.String("request_id", reqID))

	if resp.StatusCode >= http.StatusBadRequest {
		code, msg := extractError(body)
		if resp.StatusCode == http.StatusUnauthorized && c.auth != nil {
			c.auth.Unauthorized(ctx)
		}
		return nil, &APIError{Status: resp.StatusCode, Code: code, Message: msg}
	}
	return body, nil
}

// closeBody releases a streamed body that was never handed to the transport.
func closeBody(r io.Reader) {
	if rc, ok := r.(io.Closer); ok {
		rc.Close()
	}
}

// extractError reads the error code and message from the common error
// body shapes: {"error": "..."}, {"message": "...", "code": "..."},
// {"detail": "..."} and {"detail": [{"msg": "..."}]}.
func extractError(body []byte) (string, string) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", ""
	}
	m, err := normalize.Object(body)
	if err != nil {
		return "", strings.TrimSpace(string(body))
	}
	code, _ := m["code"].(string)
	if em, ok := m["error"].(map[string]any); ok {
		m = em
		if c, isStr := m["code"].(string); isStr {
			code = c
		}
	}
	for _, k := range []string{"message", "error", "detail", "msg", "error_description"} {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return code, s
			}
		case []any:
			var parts []string
			for _, it := range v {
				if im, ok := it.(map[string]any); ok {
					if s, isStr := im["msg"].(string); isStr {
						parts = append(parts, s)
					}
				}
			}
			if len(parts) > 0 {
				return code, strings.Join(parts, "; ")
			}
		}
	}
	return code, ""
}
