package jsonclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider supplies per-request headers, such as a bearer token that may rotate.
type HeaderProvider func() map[string]string

// Error is a non-2xx response. Code and Message are filled when the body is
// the {"code","message"} envelope the arena and most verifiers answer with.
type Error struct {
	Status     int
	Code       string
	Message    string
	Body       string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
	case e.Body != "":
		return fmt.Sprintf("http %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// Temporary reports whether repeating the request may succeed.
func (e *Error) Temporary() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsStatus reports whether err is an *Error with one of the given statuses.
func IsStatus(err error, statuses ...int) bool {
	var he *Error
	if !errors.As(err, &he) {
		return false
	}
	for _, s := range statuses {
		if he.Status == s {
			return true
		}
	}
	return false
}

// CodeOf returns the envelope code of err, or "".
func CodeOf(err error) string {
	var he *Error
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// Call describes one request. Idempotent calls are retried on transport
// errors and temporary statuses.
type Call struct {
	Method     string
	Path       string
	Query      url.Values
	Body       any
	Idempotent bool
}

// Client sends JSON requests to one base URL over fasthttp.
type Client struct {
	base     string
	hc       *fasthttp.Client
	headers  HeaderProvider
	timeout  time.Duration
	attempts int
	backoff  time.Duration
}

type Option func(*Client)

// WithTimeout bounds each attempt; the caller's context bounds the whole call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.hc.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithRetry sets the total number of attempts for idempotent calls.
func WithRetry(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
	}
}

// WithBackoff sets the first retry delay; later delays double.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoff = d
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		hc:       &fasthttp.Client{MaxConnsPerHost: 64, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
		timeout:  10 * time.Second,
		attempts: 3,
		backoff:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.base }

// Get fetches path into out. GETs are idempotent.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Send(ctx, Call{Method: http.MethodGet, Path: path, Idempotent: true}, out)
}

// Post sends in as JSON. Only idempotent posts are retried.
func (c *Client) Post(ctx context.Context, path string, in, out any, idempotent bool) error {
	return c.Send(ctx, Call{Method: http.MethodPost, Path: path, Body: in, Idempotent: idempotent}, out)
}

// Fetch sends call and decodes the response into a T.
func Fetch[T any](ctx context.Context, c *Client, call Call) (T, error) {
	var out T
	err := c.Send(ctx, call, &out)
	return out, err
}

// Send performs call, decoding a 2xx body into out when out is non-nil.
func (c *Client) Send(ctx context.Context, call Call, out any) error {
	var body []byte
	if call.Body != nil {
		raw, err := json.Marshal(call.Body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", call.Method, call.Path, err)
		}
		body = raw
	}
	attempts := 1
	if call.Idempotent {
		attempts = c.attempts
	}

	for n := 1; ; n++ {
		raw, err := c.once(ctx, call, body)
		if err == nil {
			if out == nil || len(raw) == 0 {
				return nil
			}
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("decode %s %s: %w", call.Method, call.Path, err)
			}
			return nil
		}
		wait, retry := c.retryAfter(err, n)
		if !retry || n >= attempts {
			return err
		}
		if werr := sleep(ctx, wait); werr != nil {
			return err
		}
	}
}

// once runs a single attempt and returns the 2xx body.
func (c *Client) once(ctx context.Context, call Call, body []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := c.base + call.Path
	if len(call.Query) > 0 {
		uri += "?" + call.Query.Encode()
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(call.Method)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(body)
	}
	if c.headers != nil {
		for k, v := range c.headers() {
			if k = strings.TrimSpace(k); k != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := c.hc.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("%s %s: %w", call.Method, call.Path, err)
	}
	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		return append([]byte(nil), resp.Body()...), nil
	}
	return nil, responseError(status, resp.Body(), string(resp.Header.Peek("Retry-After")))
}

func responseError(status int, body []byte, retryAfter string) *Error {
	e := &Error{Status: status}
	var env struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && (env.Code != "" || env.Message != "" || env.Error != "") {
		e.Code = env.Code
		e.Message = env.Message
		if e.Message == "" {
			e.Message = env.Error
		}
	} else {
		e.Body = strings.TrimSpace(string(body))
		if len(e.Body) > 512 {
			e.Body = e.Body[:512]
		}
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

// retryAfter decides whether attempt n failed in a retryable way and how long to wait.
func (c *Client) retryAfter(err error, n int) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	wait := c.backoff << min(n-1, 5)
	var he *Error
	if errors.As(err, &he) {
		if !he.Temporary() {
			return 0, false
		}
		if he.RetryAfter > wait {
			wait = he.RetryAfter
		}
	}
	return wait, true
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
