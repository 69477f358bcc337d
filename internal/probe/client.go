// Package probe issues single HTTP requests against the service under
// test, with per-request timeout, bounded transport-level retry, and
// header injection.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultBackoff is the pause between transport-level retry attempts.
const DefaultBackoff = 250 * time.Millisecond

// maxBodyBytes bounds how much of a response body is read. Conformance
// payloads are small; anything larger is truncated rather than buffered.
const maxBodyBytes = 1 << 20

// Config configures a Client.
type Config struct {
	// BaseURL is the service root, without the /v1 prefix.
	BaseURL string

	// Headers are merged over the client defaults on every request.
	Headers map[string]string

	// Timeout bounds each individual request, connect through body read.
	Timeout time.Duration

	// Retries is the number of additional attempts after a transport
	// failure. HTTP status codes are never retried.
	Retries int

	// Backoff is the pause between attempts. Zero means DefaultBackoff.
	Backoff time.Duration

	// UserAgent overrides the default User-Agent header.
	UserAgent string
}

// Client executes requests against one base URL. Safe for concurrent
// use; it holds no per-request state.
type Client struct {
	base    string
	headers map[string]string
	retries int
	backoff time.Duration
	http    *http.Client
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	defaults := map[string]string{
		"Accept":     "application/json",
		"User-Agent": cfg.UserAgent,
	}
	if cfg.UserAgent == "" {
		defaults["User-Agent"] = "arp-conformance"
	}
	// Caller headers win over defaults.
	for k, v := range cfg.Headers {
		defaults[http.CanonicalHeaderKey(k)] = v
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		headers: defaults,
		retries: cfg.Retries,
		backoff: backoff,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Response is the result of a single delivered request. A non-2xx status
// is a valid response, not an error.
type Response struct {
	Status      int
	Header      http.Header
	Body        []byte
	URL         string
	Elapsed     time.Duration
	ContentType string
}

// DecodeJSON unmarshals the response body.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s response: %w", r.URL, err)
	}
	return nil
}

// Excerpt returns up to n bytes of the body for use as check evidence.
func (r *Response) Excerpt(n int) string {
	if len(r.Body) <= n {
		return string(r.Body)
	}
	return string(r.Body[:n]) + "..."
}

// IsMutating reports whether a method can create or change server-side
// state. Mutating requests are never retried once delivery is ambiguous.
func IsMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Send issues one request. body, when non-nil, is marshalled as JSON.
//
// Transport failures (connection refused/reset, DNS failure, timeouts)
// are retried up to the configured count. For mutating methods the retry
// is attempted only when the failure proves the request was never
// delivered (dial or DNS error); a failure after the connection was
// established could mean the server acted on the request, so it is
// surfaced instead of re-sent.
func (c *Client) Send(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	url := c.base + path
	mutating := IsMutating(method)

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying request", "method", method, "url", url, "attempt", attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		resp, err := c.send(ctx, method, url, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err, mutating) {
			break
		}
	}
	return nil, &TransportError{Method: method, URL: url, Err: lastErr}
}

// Sample issues one request and reads at most maxBytes of the body
// before closing the connection. Used for endpoints that stream
// indefinitely (server-sent events), where a full body read would block
// until the request timeout. Whatever arrived before the read stopped is
// kept, including on a mid-read timeout. Never retried.
func (c *Client) Sample(ctx context.Context, method, path, accept string, maxBytes int64) (*Response, error) {
	url := c.base + path
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	// A short or timed-out read still yields a usable sample.
	buf := make([]byte, maxBytes)
	n, _ := io.ReadFull(resp.Body, buf)

	ct := resp.Header.Get("Content-Type")
	if mt, _, mimeErr := mime.ParseMediaType(ct); mimeErr == nil {
		ct = mt
	}

	return &Response{
		Status:      resp.StatusCode,
		Header:      resp.Header,
		Body:        buf[:n],
		URL:         url,
		Elapsed:     time.Since(start),
		ContentType: ct,
	}, nil
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte) (*Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	ct := resp.Header.Get("Content-Type")
	if mt, _, mimeErr := mime.ParseMediaType(ct); mimeErr == nil {
		ct = mt
	}

	return &Response{
		Status:      resp.StatusCode,
		Header:      resp.Header,
		Body:        data,
		URL:         url,
		Elapsed:     elapsed,
		ContentType: ct,
	}, nil
}

// retryable classifies a transport error. Non-mutating requests retry on
// any transport failure; mutating requests retry only when the error
// proves non-delivery.
func retryable(err error, mutating bool) bool {
	if err == nil {
		return false
	}
	if !mutating {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}

// TransportError wraps a request that produced no HTTP response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
