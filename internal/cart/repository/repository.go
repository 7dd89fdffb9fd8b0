package repository

import (
	"context"
	"errors"

	"github.com/waroenk/commerce/internal/cart"
)

var (
	ErrCartNotFound = errors.New("cart not found")
)

// CartRepository persists one cart record per owner key. Mutations go through
// read-modify-write in the service layer, which serializes writers per key,
// so the repository only needs whole-cart get/upsert/delete.
//
// Guest tombstones record that a guest identity was merged into a user
// account; once written they permanently invalidate the guest key for cart
// operations.
type CartRepository interface {
	GetCart(ctx context.Context, ownerKey string) (*cart.Cart, error)
	UpsertCart(ctx context.Context, c *cart.Cart) error
	DeleteCart(ctx context.Context, ownerKey string) error

	InvalidateGuest(ctx context.Context, guestKey string) error
	IsGuestInvalidated(ctx context.Context, guestKey string) (bool, error)
}
