package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Kind distinguishes the two identity variants. There is deliberately no
// string-sniffing anywhere: every cart and checkout operation receives an
// Identity value, never a raw token.
type Kind int

const (
	KindGuest Kind = iota + 1
	KindUser
)

// Identity is the acting identity of a request: either an authenticated user
// (ID is the user id) or an anonymous guest (ID is the client-held token).
type Identity struct {
	Kind Kind
	ID   string
}

func Guest(token string) Identity {
	return Identity{Kind: KindGuest, ID: token}
}

func User(id string) Identity {
	return Identity{Kind: KindUser, ID: id}
}

func (i Identity) IsUser() bool {
	return i.Kind == KindUser
}

func (i Identity) IsZero() bool {
	return i.Kind == 0 || i.ID == ""
}

// Key returns the storage key owning this identity's cart.
func (i Identity) Key() string {
	switch i.Kind {
	case KindGuest:
		return "guest:" + i.ID
	case KindUser:
		return "user:" + i.ID
	}
	return ""
}

func (i Identity) String() string {
	return i.Key()
}

// NewGuestToken mints an unguessable guest token (128 bits of entropy). The
// token is the sole authorization for the guest's cart, so it must come from
// crypto/rand, never a counter or timestamp.
func NewGuestToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate guest token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
