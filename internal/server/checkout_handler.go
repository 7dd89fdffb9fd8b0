package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/waroenk/commerce/internal/address"
	"github.com/waroenk/commerce/internal/checkout"
	checkoutservice "github.com/waroenk/commerce/internal/checkout/service"
	"github.com/waroenk/commerce/internal/inventory"
)

type CheckoutHandler struct {
	checkouts *checkoutservice.CheckoutService
}

func NewCheckoutHandler(checkouts *checkoutservice.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkouts: checkouts}
}

type FinalizeRequestDTO struct {
	AddressID  string         `json:"address_id,omitempty"`
	NewAddress *NewAddressDTO `json:"new_address,omitempty"`
}

type NewAddressDTO struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
}

type CheckoutResponseDTO struct {
	Session *checkout.Session      `json:"session"`
	Locks   *inventory.LockSummary `json:"locks,omitempty"`
}

func mustUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := mustIdentity(w, r)
	if !ok {
		return "", false
	}
	if !id.IsUser() {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "checkout requires an authenticated user")
		return "", false
	}
	return id.ID, true
}

func (h *CheckoutHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	id, ok := mustIdentity(w, r)
	if !ok {
		return
	}

	session, summary, err := h.checkouts.Prepare(r.Context(), id)
	if err != nil {
		// A shortfall still carries the per-line outcomes the client needs
		// to show which lines were short.
		if summary != nil {
			respondJSON(w, http.StatusConflict, CheckoutResponseDTO{Session: session, Locks: summary})
			return
		}
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{Session: session, Locks: summary})
}

func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}

	session, err := h.checkouts.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CheckoutResponseDTO{Session: session})
}

func (h *CheckoutHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}

	var req FinalizeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var newAddr *address.Address
	if req.NewAddress != nil {
		newAddr = &address.Address{
			Recipient:  req.NewAddress.Recipient,
			Phone:      req.NewAddress.Phone,
			Street:     req.NewAddress.Street,
			City:       req.NewAddress.City,
			Province:   req.NewAddress.Province,
			PostalCode: req.NewAddress.PostalCode,
		}
	}

	session, err := h.checkouts.Finalize(r.Context(), chi.URLParam(r, "id"), userID, req.AddressID, newAddr)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CheckoutResponseDTO{Session: session})
}

func (h *CheckoutHandler) Pay(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}

	session, err := h.checkouts.Pay(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CheckoutResponseDTO{Session: session})
}

func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := mustUser(w, r)
	if !ok {
		return
	}

	session, err := h.checkouts.Cancel(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CheckoutResponseDTO{Session: session})
}
