package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySeparatesGuestAndUserNamespaces(t *testing.T) {
	assert.Equal(t, "guest:abc", Guest("abc").Key())
	assert.Equal(t, "user:abc", User("abc").Key())
	assert.NotEqual(t, Guest("abc").Key(), User("abc").Key())
}

func TestIsZero(t *testing.T) {
	assert.True(t, Identity{}.IsZero())
	assert.True(t, Identity{Kind: KindUser}.IsZero())
	assert.False(t, User("u1").IsZero())
}

func TestNewGuestTokenIsUniqueAndLong(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok, err := NewGuestToken()
		require.NoError(t, err)
		assert.Len(t, tok, 32) // 16 random bytes, hex-encoded
		assert.False(t, seen[tok], "token collision")
		seen[tok] = true
	}
}

func TestResolverBearerTokenWins(t *testing.T) {
	verifier := NewStaticVerifier(map[string]string{"tok-1": "u1"})

	var got Identity
	handler := Resolver(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	req.Header.Set(GuestTokenHeader, "should-be-ignored")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, User("u1"), got)
}

func TestResolverRejectsInvalidBearer(t *testing.T) {
	verifier := NewStaticVerifier(nil)

	handler := Resolver(verifier)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run for an invalid credential")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResolverUsesGuestTokenHeader(t *testing.T) {
	var got Identity
	handler := Resolver(NewStaticVerifier(nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(GuestTokenHeader, "tok-guest")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, Guest("tok-guest"), got)
	assert.Equal(t, "tok-guest", rec.Header().Get(GuestTokenHeader))
}

func TestResolverMintsGuestTokenWhenMissing(t *testing.T) {
	var got Identity
	handler := Resolver(NewStaticVerifier(nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.False(t, got.IsZero())
	assert.Equal(t, KindGuest, got.Kind)
	// The minted token is echoed so the client can persist it.
	assert.Equal(t, got.ID, rec.Header().Get(GuestTokenHeader))
}
