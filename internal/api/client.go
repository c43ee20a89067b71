package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/papertrade/internal/storage"
)

// TokenKey is the storage key under which the bearer token is persisted.
const TokenKey = "token"

// Client provides access to the trading service REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	store      storage.Store

	mu    sync.RWMutex
	token string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenStore sets the durable store used by SetToken and LoadToken.
func WithTokenStore(store storage.Store) ClientOption {
	return func(c *Client) {
		c.store = store
	}
}

// WithToken sets the initial in-memory token without persisting it.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// Token returns the bearer token currently attached to requests.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token and persists it. An empty token clears
// both the in-memory value and the persisted one.
func (c *Client) SetToken(ctx context.Context, token string) error {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}

	if token == "" {
		if err := c.store.Delete(ctx, TokenKey); err != nil {
			return fmt.Errorf("clear persisted token: %w", err)
		}
		return nil
	}

	if err := c.store.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

// LoadToken reads the persisted token into the client. It returns "" when
// nothing is persisted.
func (c *Client) LoadToken(ctx context.Context) (string, error) {
	if c.store == nil {
		return c.Token(), nil
	}

	token, err := c.store.Get(ctx, TokenKey)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load persisted token: %w", err)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	return token, nil
}
