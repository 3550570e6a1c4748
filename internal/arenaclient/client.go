package arenaclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/jsonclient"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Client calls the arena HTTP API with a bearer token.
type Client struct {
	api *jsonclient.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, timeout time.Duration) *Client {
	c := &Client{}
	c.api = jsonclient.New(baseURL,
		jsonclient.WithTimeout(timeout),
		jsonclient.WithRetry(3),
		jsonclient.WithHeaderProvider(c.headers),
	)
	return c
}

func (c *Client) headers() map[string]string {
	tok := c.Token()
	if tok == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(tok)
	c.mu.Unlock()
}

// DevSignIn signs in by display name and keeps the returned token.
func (c *Client) DevSignIn(ctx context.Context, displayName string) (*arenadto.AuthResponse, error) {
	var out arenadto.AuthResponse
	if err := c.api.Post(ctx, "/api/auth/dev", map[string]string{"displayName": displayName}, &out, false); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

// ExchangeCredential trades an identity-provider credential for a session token.
func (c *Client) ExchangeCredential(ctx context.Context, credential string) (*arenadto.AuthResponse, error) {
	var out arenadto.AuthResponse
	if err := c.api.Post(ctx, "/api/auth/token", map[string]string{"credential": credential}, &out, false); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*arenadto.Me, error) {
	var out arenadto.Me
	if err := c.api.Get(ctx, "/api/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Waiting(ctx context.Context) (*arenadto.QueueSnapshot, error) {
	var out arenadto.QueueSnapshot
	if err := c.api.Get(ctx, "/api/lobby/waiting", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GlobalLeaderboard(ctx context.Context) (*arenadto.Leaderboard, error) {
	var out arenadto.Leaderboard
	if err := c.api.Get(ctx, "/api/leaderboard/global", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DailyWinner(ctx context.Context, date string) (*arenadto.DailyWinner, error) {
	call := jsonclient.Call{Method: http.MethodGet, Path: "/api/leaderboard/daily/winner", Idempotent: true}
	if date != "" {
		call.Query = url.Values{"date": {date}}
	}
	out, err := jsonclient.Fetch[arenadto.DailyWinner](ctx, c.api, call)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Config fetches the public sign-in bootstrap.
func (c *Client) Config(ctx context.Context) (*arenadto.Config, error) {
	var out arenadto.Config
	if err := c.api.Get(ctx, "/api/config", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports whether /health answers.
func (c *Client) Health(ctx context.Context) error {
	return c.api.Get(ctx, "/health", nil)
}
