// Package client is an API client for the commerce service that transparently
// refreshes an expired access credential. Concurrent callers hitting a 401
// funnel into one refresh; each then replays its request once with the new
// credential. A replay that fails 401 again is final, so a permanently
// invalid credential can never cause a refresh loop.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrAuthExpired is returned when the credential could not be refreshed, or
// when a request still fails authentication after a successful refresh.
var ErrAuthExpired = errors.New("authentication expired")

// Credentials is an access+refresh token pair.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// RefreshFunc exchanges a refresh token for a new credential pair.
type RefreshFunc func(ctx context.Context, refreshToken string) (Credentials, error)

type Client struct {
	baseURL string
	httpc   *http.Client
	refresh RefreshFunc

	// onAuthExpired fires exactly once per failed refresh (logout hook).
	onAuthExpired func()

	sfg singleflight.Group

	mu    sync.RWMutex
	creds Credentials
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithLogoutHook installs the side effect fired when a refresh fails.
func WithLogoutHook(fn func()) Option {
	return func(c *Client) { c.onAuthExpired = fn }
}

func New(baseURL string, creds Credentials, refresh RefreshFunc, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		refresh: refresh,
		creds:   creds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credentials returns the current credential pair.
func (c *Client) Credentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// Do issues the request with the current access token. On a 401 it refreshes
// (single-flight across callers) and replays the request once. The request is
// rebuilt per attempt, so bodies are always replayable.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	seen := c.Credentials()

	resp, err := c.send(ctx, method, path, body, seen.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	if err := c.refreshCredentials(ctx, seen); err != nil {
		return nil, err
	}

	resp, err = c.send(ctx, method, path, body, c.Credentials().AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Non-retriable: the replay already carried a fresh credential.
		resp.Body.Close()
		return nil, ErrAuthExpired
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.httpc.Do(req)
}

// refreshCredentials performs the single-flight refresh. Callers that raced
// in after another caller already swapped the credential return immediately
// without a second refresh call.
func (c *Client) refreshCredentials(ctx context.Context, seen Credentials) error {
	_, err, _ := c.sfg.Do("refresh", func() (interface{}, error) {
		current := c.Credentials()
		if current.AccessToken != seen.AccessToken {
			// Another flight already refreshed; reuse its result.
			return nil, nil
		}

		fresh, err := c.refresh(ctx, current.RefreshToken)
		if err != nil {
			if c.onAuthExpired != nil {
				c.onAuthExpired()
			}
			return nil, fmt.Errorf("%w: %v", ErrAuthExpired, err)
		}

		c.mu.Lock()
		c.creds = fresh
		c.mu.Unlock()
		return nil, nil
	})
	return err
}
