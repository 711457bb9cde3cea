// Package github lists an organization's repositories and collects forge
// metrics for dependency source repositories.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"
)

// Cache stores responses between runs.
type Cache interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
}

// Client is an authenticated GitHub REST API client.
type Client struct {
	gh     *gh.Client
	cache  Cache
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCache caches repository metrics.
func WithCache(c Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a GitHub API client with the given token. An empty token
// makes unauthenticated requests.
func NewClient(ctx context.Context, token string, opts ...Option) *Client {
	var hc *http.Client
	if token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = 30 * time.Second

	c := &Client{gh: gh.NewClient(hc), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientWithBase creates a client pointing at a custom API base URL, such
// as a GitHub Enterprise server or a test server.
func NewClientWithBase(ctx context.Context, token, baseURL string, opts ...Option) (*Client, error) {
	c := NewClient(ctx, token, opts...)
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing GitHub base URL: %w", err)
	}
	c.gh.BaseURL = u
	return c, nil
}

// isNotFound reports whether err is a 404 from the API.
func isNotFound(err error) bool {
	var er *gh.ErrorResponse
	return errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == http.StatusNotFound
}

// RateLimit is the core API quota.
type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Used      int       `json:"used"`
	Reset     time.Time `json:"reset"`
}

// RateLimit reports the remaining core API quota.
func (c *Client) RateLimit(ctx context.Context) (RateLimit, error) {
	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return RateLimit{}, fmt.Errorf("fetching rate limit: %w", err)
	}
	core := limits.GetCore()
	rl := RateLimit{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		Used:      core.Limit - core.Remaining,
		Reset:     core.Reset.Time,
	}
	c.logger.Info("GitHub API rate limit",
		"remaining", rl.Remaining, "limit", rl.Limit, "reset", rl.Reset.Format(time.RFC3339))
	return rl, nil
}
