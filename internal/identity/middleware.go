package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// GuestTokenHeader carries the opaque guest token the client persists. It is
// never accepted as authorization for anything but the guest's own cart.
const GuestTokenHeader = "X-Guest-Token"

var ErrInvalidCredential = errors.New("invalid or expired credential")

// TokenVerifier validates a bearer credential with the authentication
// collaborator and returns the user id it belongs to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Resolver resolves the acting identity once per request and stores it in the
// request context. A valid bearer credential wins; otherwise the guest token
// header is used, minting a fresh token (echoed back to the client) when the
// request carries neither.
func Resolver(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearer := bearerToken(r); bearer != "" {
				userID, err := verifier.Verify(r.Context(), bearer)
				if err != nil {
					unauthorized(w, "invalid or expired credential")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), User(userID))))
				return
			}

			token := strings.TrimSpace(r.Header.Get(GuestTokenHeader))
			if token == "" {
				minted, err := NewGuestToken()
				if err != nil {
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
				token = minted
			}
			// Echo the token so first-time guests can persist it.
			w.Header().Set(GuestTokenHeader, token)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Guest(token))))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": "unauthenticated"})
}
