package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// authedServer returns 200 only for the given access token.
func authedServer(t *testing.T, accept *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer "+accept.Load().(string) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDoRefreshesOnceForConcurrentCallers(t *testing.T) {
	var accept atomic.Value
	accept.Store("fresh")
	srv := authedServer(t, &accept)

	var refreshCalls int32
	refresh := func(_ context.Context, refreshToken string) (Credentials, error) {
		atomic.AddInt32(&refreshCalls, 1)
		assert.Equal(t, "r1", refreshToken)
		return Credentials{AccessToken: "fresh", RefreshToken: "r2"}, nil
	}

	c := New(srv.URL, Credentials{AccessToken: "stale", RefreshToken: "r1"}, refresh)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Do(context.Background(), http.MethodGet, "/cart", nil)
			if assert.NoError(t, err) {
				resp.Body.Close()
				assert.Equal(t, http.StatusOK, resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	// All callers funneled through a single refresh.
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))
	assert.Equal(t, "fresh", c.Credentials().AccessToken)
	assert.Equal(t, "r2", c.Credentials().RefreshToken)
}

func TestDoRefreshFailureFailsAllAndLogsOutOnce(t *testing.T) {
	var accept atomic.Value
	accept.Store("never-valid")
	srv := authedServer(t, &accept)

	refresh := func(context.Context, string) (Credentials, error) {
		// Hold the flight open long enough for every caller to join it.
		time.Sleep(50 * time.Millisecond)
		return Credentials{}, errors.New("refresh token revoked")
	}

	var logouts int32
	c := New(srv.URL, Credentials{AccessToken: "stale", RefreshToken: "r1"}, refresh,
		WithLogoutHook(func() { atomic.AddInt32(&logouts, 1) }))

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Do(context.Background(), http.MethodGet, "/cart", nil)
			assert.ErrorIs(t, err, ErrAuthExpired)
		}()
	}
	wg.Wait()

	// The logout side effect fires exactly once per failed refresh flight.
	assert.Equal(t, int32(1), atomic.LoadInt32(&logouts))
}

func TestDoSecondUnauthorizedIsFinal(t *testing.T) {
	// The server rejects everything, but the refresh "succeeds": the replay
	// must fail terminally instead of recursing into another refresh.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	var refreshCalls int32
	refresh := func(context.Context, string) (Credentials, error) {
		atomic.AddInt32(&refreshCalls, 1)
		return Credentials{AccessToken: "new", RefreshToken: "r2"}, nil
	}

	c := New(srv.URL, Credentials{AccessToken: "stale", RefreshToken: "r1"}, refresh)

	_, err := c.Do(context.Background(), http.MethodGet, "/cart", nil)
	assert.ErrorIs(t, err, ErrAuthExpired)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))
}

func TestDoSuccessSkipsRefresh(t *testing.T) {
	var accept atomic.Value
	accept.Store("good")
	srv := authedServer(t, &accept)

	refresh := func(context.Context, string) (Credentials, error) {
		t.Fatal("refresh must not be called")
		return Credentials{}, nil
	}

	c := New(srv.URL, Credentials{AccessToken: "good", RefreshToken: "r1"}, refresh)

	resp, err := c.Do(context.Background(), http.MethodGet, "/cart", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDoSendsBodyOnReplay(t *testing.T) {
	var sawBody atomic.Value
	sawBody.Store("")
	attempts := int32(0)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		sawBody.Store(string(buf[:n]))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	refresh := func(context.Context, string) (Credentials, error) {
		return Credentials{AccessToken: "new", RefreshToken: "r2"}, nil
	}

	c := New(srv.URL, Credentials{AccessToken: "stale", RefreshToken: "r1"}, refresh)

	resp, err := c.Do(context.Background(), http.MethodPost, "/cart/items", []byte(`{"sku":"A"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, `{"sku":"A"}`, sawBody.Load())
}
