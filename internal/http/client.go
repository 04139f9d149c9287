// Package http is the request executor used by virtual users. It issues a
// single HTTP request with a per-request deadline and returns the status,
// headers, body and phase timings.
package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"
)

// DefaultTimeout is applied to requests that do not carry their own timeout.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is wrapped into the error returned by Do when the request
// deadline expired before a response was read.
var ErrTimeout = errors.New("request timed out")

// Client executes requests against a base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	timeout    time.Duration
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a new HTTP client with the given options
func NewClient(options ...ClientOption) *Client {
	client := &Client{
		httpClient: NewHTTPClient(DefaultTransportConfig()),
		headers:    make(map[string]string),
		timeout:    DefaultTimeout,
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithBaseURL sets the base URL relative request URLs are resolved against.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithHTTPClient replaces the underlying transport client. Connection pools
// are shared by every VU that uses the same Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the default per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Do executes an HTTP request and returns the response with detailed timing information.
//
// A non-nil error means no response was obtained (DNS, connect, timeout,
// cancellation or body read failure). Any HTTP status, including 4xx and 5xx,
// is returned as a response with a nil error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := req.Build(ctx, c.baseURL)
	if err != nil {
		return nil, err
	}

	for key, value := range c.headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}

	rec := newTraceRecorder(time.Now())
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(ctx, rec.trace()))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapTransportError(ctx, err)
	}
	defer httpResp.Body.Close()

	readStart := time.Now()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, wrapTransportError(ctx, fmt.Errorf("failed to read response body: %w", err))
	}
	timing := rec.finish(readStart, time.Now())

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    httpResp.Header,
		Body:       body,
		Duration:   timing.TotalTime,
		Timing:     timing,
	}, nil
}

// traceRecorder collects httptrace phases. The transport may keep dialing
// in the background after the request took another idle connection, so
// hooks can fire on other goroutines at any time; every access holds mu.
type traceRecorder struct {
	mu       sync.Mutex
	timing   TimingInfo
	mark     time.Time
	phaseEnd time.Time
}

func newTraceRecorder(start time.Time) *traceRecorder {
	return &traceRecorder{timing: TimingInfo{StartTime: start}, phaseEnd: start}
}

func (r *traceRecorder) begin() {
	r.mu.Lock()
	r.mark = time.Now()
	r.mu.Unlock()
}

func (r *traceRecorder) end(field func(*TimingInfo) *time.Duration) {
	r.mu.Lock()
	now := time.Now()
	*field(&r.timing) = now.Sub(r.mark)
	r.phaseEnd = now
	r.mu.Unlock()
}

// finish stamps the body read and returns a copy taken under the lock.
func (r *traceRecorder) finish(readStart, end time.Time) TimingInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timing.ContentTransferTime = end.Sub(readStart)
	r.timing.TotalTime = end.Sub(r.timing.StartTime)
	return r.timing
}

// trace records connection phases. Reused connections skip DNS, connect
// and TLS, so those stay zero and TTFB counts from the start.
func (r *traceRecorder) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			r.begin()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			r.end(func(t *TimingInfo) *time.Duration { return &t.DNSLookupTime })
		},
		ConnectStart: func(string, string) {
			r.begin()
		},
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				r.end(func(t *TimingInfo) *time.Duration { return &t.TCPConnectTime })
			}
		},
		TLSHandshakeStart: func() {
			r.begin()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				r.end(func(t *TimingInfo) *time.Duration { return &t.TLSHandshakeTime })
			}
		},
		GotFirstResponseByte: func() {
			r.mu.Lock()
			r.timing.TimeToFirstByte = time.Since(r.phaseEnd)
			r.mu.Unlock()
		},
	}
}

func wrapTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
