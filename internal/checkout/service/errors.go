package service

import "errors"

var (
	ErrEmptyCart         = errors.New("cart is empty, nothing to checkout")
	ErrUnauthorized      = errors.New("checkout requires an authenticated user")
	ErrNotOwner          = errors.New("checkout session belongs to another user")
	ErrInvalidTransition = errors.New("operation not legal for current checkout status")
	ErrInsufficientStock = errors.New("insufficient stock for one or more items")
	ErrAddressRequired   = errors.New("an address id or a new address is required")
	ErrSessionExpired    = errors.New("checkout session has expired")
	ErrPaymentDeclined   = errors.New("payment was declined")
	ErrPaymentTimeout    = errors.New("payment service did not respond in time")
)
