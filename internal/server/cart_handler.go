package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/waroenk/commerce/internal/cart"
	cartservice "github.com/waroenk/commerce/internal/cart/service"
	"github.com/waroenk/commerce/internal/identity"
)

type CartHandler struct {
	carts *cartservice.CartService
}

func NewCartHandler(carts *cartservice.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

type AddItemRequestDTO struct {
	SKU           string  `json:"sku"`
	SubSKU        string  `json:"sub_sku,omitempty"`
	Quantity      int     `json:"quantity"`
	Price         float64 `json:"price"`
	Title         string  `json:"title,omitempty"`
	ImageURL      string  `json:"image_url,omitempty"`
	StockOnRecord int     `json:"stock_on_record,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type MergeRequestDTO struct {
	GuestToken string `json:"guest_token"`
}

type CartResponseDTO struct {
	Cart         *cart.Cart `json:"cart"`
	StockWarning bool       `json:"stock_warning,omitempty"`
}

func mustIdentity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok || id.IsZero() {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing identity")
		return identity.Identity{}, false
	}
	return id, true
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	id, ok := mustIdentity(w, r)
	if !ok {
		return
	}

	c, err := h.carts.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CartResponseDTO{Cart: c})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := mustIdentity(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SKU == "" {
		respondError(w, http.StatusBadRequest, "invalid_sku", "sku is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	c, warning, err := h.carts.AddItem(r.Context(), id, cartservice.AddItemInput{
		SKU:           req.SKU,
		SubSKU:        req.SubSKU,
		Quantity:      req.Quantity,
		PriceSnapshot: req.Price,
		TitleSnapshot: req.Title,
		ImageSnapshot: req.ImageURL,
		StockSnapshot: req.StockOnRecord,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, CartResponseDTO{Cart: c, StockWarning: warning})
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := mustIdentity(w, r)
	if !ok {
		return
	}

	sku := chi.URLParam(r, "sku")
	if sku == "" {
		respondError(w, http.StatusBadRequest, "invalid_sku", "sku is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity < 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	c, err := h.carts.UpdateQuantity(r.Context(), id, sku, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CartResponseDTO{Cart: c})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := mustIdentity(w, r)
	if !ok {
		return
	}

	sku := chi.URLParam(r, "sku")
	if sku == "" {
		respondError(w, http.StatusBadRequest, "invalid_sku", "sku is required")
		return
	}

	c, err := h.carts.RemoveItem(r.Context(), id, sku)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CartResponseDTO{Cart: c})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	id, ok := mustIdentity(w, r)
	if !ok {
		return
	}

	c, err := h.carts.Clear(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CartResponseDTO{Cart: c})
}

// Merge folds a guest cart into the authenticated user's cart; it is the
// login hand-off call. Merging requires a user identity.
func (h *CartHandler) Merge(w http.ResponseWriter, r *http.Request) {
	id, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	if !id.IsUser() {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "merge requires an authenticated user")
		return
	}

	var req MergeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.GuestToken == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "guest_token is required")
		return
	}

	c, err := h.carts.Merge(r.Context(), req.GuestToken, id.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CartResponseDTO{Cart: c})
}
