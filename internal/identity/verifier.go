package identity

import (
	"context"
	"sync"
)

// StaticVerifier is a stand-in for the authentication collaborator: a fixed
// token→user table. Real deployments swap in a verifier backed by the auth
// service.
type StaticVerifier struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	if tokens == nil {
		tokens = make(map[string]string)
	}
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Add(token, userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens[token] = userID
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	userID, ok := v.tokens[token]
	if !ok {
		return "", ErrInvalidCredential
	}
	return userID, nil
}
