package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request is one rendered step request. URL may be absolute or relative to
// the client's base URL, query string included.
type Request struct {
	Method string
	URL    string
	Header http.Header

	// Body is sent as is. When it is nil and JSON is set, JSON is encoded
	// at send time and Content-Type defaults to application/json.
	Body []byte
	JSON interface{}

	// Timeout overrides the client default when > 0.
	Timeout time.Duration
}

// NewRequest returns a request with no headers or body.
func NewRequest(method, rawURL string) *Request {
	return &Request{Method: method, URL: rawURL, Header: make(http.Header)}
}

// WithHeader sets a header, replacing earlier values.
func (r *Request) WithHeader(key, value string) *Request {
	r.Header.Set(key, value)
	return r
}

// WithBody sets a raw body.
func (r *Request) WithBody(body string) *Request {
	r.Body = []byte(body)
	return r
}

// WithJSON sets a value to be sent JSON encoded.
func (r *Request) WithJSON(v interface{}) *Request {
	r.JSON = v
	return r
}

// WithTimeout sets the request deadline.
func (r *Request) WithTimeout(timeout time.Duration) *Request {
	r.Timeout = timeout
	return r
}

// resolveURL joins a relative ref onto base, keeping any path prefix of base
// and the ref's own query string.
func resolveURL(base, ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid request url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u, nil
	}
	if base == "" {
		return nil, fmt.Errorf("relative url %q requires a base url", ref)
	}

	b, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", base, err)
	}
	joined := *b
	joined.Path = strings.TrimRight(b.Path, "/") + "/" + strings.TrimLeft(u.Path, "/")
	joined.RawPath = ""
	joined.RawQuery = u.RawQuery
	joined.Fragment = ""
	return &joined, nil
}

// Build turns r into a net/http request bound to ctx.
func (r *Request) Build(ctx context.Context, baseURL string) (*http.Request, error) {
	u, err := resolveURL(baseURL, r.URL)
	if err != nil {
		return nil, err
	}

	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	body := r.Body
	if body == nil && r.JSON != nil {
		if body, err = json.Marshal(r.JSON); err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = header
	return req, nil
}
