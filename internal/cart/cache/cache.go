package cache

import (
	"context"
	"errors"

	"github.com/waroenk/commerce/internal/cart"
)

// CartCache is a read-through cache keyed by the identity's owner key. The
// cache is never the sole record of a cart; it is invalidated on every
// mutation and repopulated lazily.
type CartCache interface {
	Get(ctx context.Context, ownerKey string) (*cart.Cart, error)
	Set(ctx context.Context, ownerKey string, c *cart.Cart) error
	Delete(ctx context.Context, ownerKey string) error
}

var ErrCacheMiss = errors.New("cache miss")
