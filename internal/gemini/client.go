// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jeranaias/gemchat/internal/logging"
)

// Configuration constants.
const (
	// DefaultBaseURL is the public Gemini endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultTimeout bounds a whole non-streamed request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of extra attempts for network failures.
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the first backoff delay.
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps exponential backoff.
	retryMaxDelay = 10 * time.Second

	// DefaultRequestsPerMinute gates outgoing attempts.
	DefaultRequestsPerMinute = 60

	// MaxResponseSize is the maximum accepted non-streamed body.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024

	apiKeyHeader = "x-goog-api-key"
)

// Sender is implemented by every transport.
type Sender interface {
	// Send performs one blocking generateContent call.
	Send(ctx context.Context, req Request) (*Response, error)

	// Stream performs a streamed call, passing each text fragment to onChunk.
	// On a broken stream it returns a *StreamError carrying the partial text.
	Stream(ctx context.Context, req Request, onChunk func(string)) (*Response, error)

	// Close releases transport resources.
	Close() error
}

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RequestsPerMinute int

	// HTTPClient replaces both the request and streaming clients (tests).
	HTTPClient *http.Client
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           DefaultBaseURL,
		Timeout:           DefaultTimeout,
		MaxRetries:        DefaultMaxRetries,
		RetryBaseDelay:    DefaultRetryBaseDelay,
		RequestsPerMinute: DefaultRequestsPerMinute,
	}
}

// Client talks to the REST API directly.
type Client struct {
	baseURL        string
	apiKey         string
	maxRetries     int
	retryBaseDelay time.Duration
	timeout        time.Duration // Per attempt, body reads included
	httpClient     *http.Client  // Bounded by Timeout
	streamClient   *http.Client  // Header timeout only, body bounded by ctx
	limiter        *rate.Limiter
}

// NewClient creates a new client. Zero-valued fields take defaults;
// a negative MaxRetries disables retries.
func NewClient(cfg *ClientConfig) *Client {
	r := resolveConfig(cfg)
	c := &Client{
		baseURL:        r.BaseURL,
		apiKey:         r.APIKey,
		maxRetries:     r.MaxRetries,
		retryBaseDelay: r.RetryBaseDelay,
		timeout:        r.Timeout,
		limiter:        newLimiter(r.RequestsPerMinute),
	}
	timeout := r.Timeout

	if r.HTTPClient != nil {
		c.httpClient = r.HTTPClient
		c.streamClient = r.HTTPClient
	} else {
		c.httpClient = &http.Client{Timeout: timeout}
		c.streamClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: timeout,
				TLSHandshakeTimeout:   10 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		}
	}
	return c
}

// resolveConfig fills zero-valued fields of cfg with defaults.
func resolveConfig(cfg *ClientConfig) ClientConfig {
	d := DefaultConfig()
	if cfg == nil {
		return *d
	}
	r := *cfg
	r.BaseURL = strings.TrimRight(r.BaseURL, "/")
	if r.BaseURL == "" {
		r.BaseURL = d.BaseURL
	}
	if r.Timeout <= 0 {
		r.Timeout = d.Timeout
	}
	if r.MaxRetries < 0 {
		r.MaxRetries = 0
	}
	if r.RetryBaseDelay <= 0 {
		r.RetryBaseDelay = d.RetryBaseDelay
	}
	if r.RequestsPerMinute <= 0 {
		r.RequestsPerMinute = d.RequestsPerMinute
	}
	return r
}

// newLimiter allows rpm requests per minute with a small burst.
func newLimiter(rpm int) *rate.Limiter {
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst)
}

// Close implements Sender.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
	return nil
}

// KeyFingerprint identifies the API key in logs without exposing it.
// SECURITY: Uses SHA-256 so no key fragment is ever written.
func (c *Client) KeyFingerprint() string {
	return keyFingerprint(c.apiKey)
}

// Fingerprint returns the log-safe identifier for key, or "none".
func Fingerprint(key string) string {
	return keyFingerprint(key)
}

func keyFingerprint(key string) string {
	if key == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:4])
}

func (c *Client) endpoint(model, method string) string {
	return fmt.Sprintf("%s/models/%s:%s", c.baseURL, url.PathEscape(model), method)
}

// =============================================================================
// SEND
// =============================================================================

// Send performs a blocking generateContent request with retries.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(BuildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := c.endpoint(req.Params.Model, "generateContent")

	var result *Response
	err = c.withRetry(ctx, "send", func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		var attemptErr error
		result, attemptErr = c.doRequest(attemptCtx, endpoint, body)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withRetry runs attempt until it succeeds, fails with a non-retryable
// error, or runs out of retries. Every attempt waits on the rate limiter.
func (c *Client) withRetry(ctx context.Context, op string, attempt func() error) error {
	return retry(ctx, retryPolicy{
		op:        op,
		key:       c.KeyFingerprint(),
		retries:   c.maxRetries,
		baseDelay: c.retryBaseDelay,
		limiter:   c.limiter,
	}, attempt)
}

// retryPolicy is shared by the REST and SDK transports.
type retryPolicy struct {
	op        string
	key       string
	retries   int
	baseDelay time.Duration
	limiter   *rate.Limiter
}

func retry(ctx context.Context, p retryPolicy, attempt func() error) error {
	log := logging.L().WithFields(logrus.Fields{"op": p.op, "key": p.key})

	var lastErr error
	for n := 0; n <= p.retries; n++ {
		if n > 0 {
			delay := backoffDelay(p.baseDelay, n, lastErr)
			log.WithField("attempt", n+1).WithField("delay", delay).WithError(lastErr).Warn("retrying request")
			select {
			case <-ctx.Done():
				return &NetworkError{Op: p.op, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return &NetworkError{Op: p.op, Err: err}
		}

		err := attempt()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
	}

	log.WithError(lastErr).Error("retries exhausted")
	return lastErr
}

// calculateBackoff returns the delay before retry number attempt (1-based).
// A server Retry-After wins when it is longer.
func (c *Client) calculateBackoff(attempt int, lastErr error) time.Duration {
	return backoffDelay(c.retryBaseDelay, attempt, lastErr)
}

func backoffDelay(base time.Duration, attempt int, lastErr error) time.Duration {
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	var ne *NetworkError
	if errors.As(lastErr, &ne) && ne.RetryAfter > delay {
		delay = ne.RetryAfter
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	return delay
}

// doRequest performs a single attempt.
func (c *Client) doRequest(ctx context.Context, endpoint string, body []byte) (*Response, error) {
	resp, err := c.post(ctx, c.httpClient, "send", endpoint, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return nil, &NetworkError{Op: "send", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleErrorResponse("send", resp, data)
	}

	var parsed GenerateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	return extractResponse(&parsed)
}

// post builds and sends a JSON POST, classifying transport failures.
func (c *Client) post(ctx context.Context, hc *http.Client, op, endpoint string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	start := time.Now()
	resp, err := hc.Do(req)
	// SECURITY: Drop the key header so it cannot end up in logs
	req.Header.Del(apiKeyHeader)

	if err != nil {
		return nil, transportError(ctx, op, err)
	}

	logging.L().WithFields(logrus.Fields{
		"op":       op,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("api response")
	return resp, nil
}

// transportError classifies an error from http.Client.Do.
func transportError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &NetworkError{Op: op, Err: context.Canceled}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &NetworkError{Op: op, Err: ErrTimeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &NetworkError{Op: op, Err: ErrTimeout}
	}
	return &NetworkError{Op: op, Err: err}
}

// readResponse reads the body with a size limit.
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts a non-2xx reply to a taxonomy error.
func handleErrorResponse(op string, resp *http.Response, body []byte) error {
	message := strings.TrimSpace(string(body))
	apiStatus := ""

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
		apiStatus = apiErr.Error.Status
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return statusError(op, resp.StatusCode, apiStatus, message, parseRetryAfter(resp.Header.Get("Retry-After")))
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
