package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/waroenk/commerce/internal/address"
	cartrepo "github.com/waroenk/commerce/internal/cart/repository"
	cartservice "github.com/waroenk/commerce/internal/cart/service"
	checkoutrepo "github.com/waroenk/commerce/internal/checkout/repository"
	checkoutservice "github.com/waroenk/commerce/internal/checkout/service"
	"github.com/waroenk/commerce/internal/identity"
	"github.com/waroenk/commerce/internal/inventory"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps the service layer's sentinel errors onto HTTP
// statuses. Unknown errors become opaque 500s; the detail goes to the log,
// not the client.
func handleServiceError(w http.ResponseWriter, err error) {
	var httpStatus int
	var code string

	switch {
	case errors.Is(err, cartrepo.ErrCartNotFound),
		errors.Is(err, checkoutrepo.ErrSessionNotFound),
		errors.Is(err, address.ErrAddressNotFound),
		errors.Is(err, inventory.ErrSKUNotFound):
		httpStatus = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, identity.ErrInvalidCredential),
		errors.Is(err, checkoutservice.ErrUnauthorized):
		httpStatus = http.StatusUnauthorized
		code = "unauthenticated"
	case errors.Is(err, checkoutservice.ErrNotOwner):
		httpStatus = http.StatusForbidden
		code = "permission_denied"
	case errors.Is(err, cartservice.ErrGuestInvalidated):
		httpStatus = http.StatusGone
		code = "guest_cart_merged"
	case errors.Is(err, cartservice.ErrInvalidQuantity),
		errors.Is(err, cartservice.ErrInvalidSKU),
		errors.Is(err, checkoutservice.ErrEmptyCart),
		errors.Is(err, checkoutservice.ErrAddressRequired):
		httpStatus = http.StatusBadRequest
		code = "invalid_argument"
	case errors.Is(err, checkoutservice.ErrInsufficientStock),
		errors.Is(err, checkoutservice.ErrInvalidTransition),
		errors.Is(err, checkoutservice.ErrSessionExpired):
		httpStatus = http.StatusConflict
		code = "conflict"
	case errors.Is(err, checkoutservice.ErrPaymentDeclined):
		httpStatus = http.StatusPaymentRequired
		code = "payment_declined"
	case errors.Is(err, checkoutservice.ErrPaymentTimeout):
		httpStatus = http.StatusGatewayTimeout
		code = "payment_timeout"
	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, httpStatus, code, err.Error())
}
