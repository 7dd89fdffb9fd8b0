package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/waroenk/commerce/internal/identity"
)

// NewRouter wires the HTTP surface: identity resolution, instrumentation,
// and the cart and checkout route trees.
func NewRouter(
	verifier identity.TokenVerifier,
	carts *CartHandler,
	checkouts *CheckoutHandler,
	m *Metrics,
	requestTimeout time.Duration,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", MetricsHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identity.Resolver(verifier))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", Instrument(m, "cart_get", carts.GetCart))
			r.Post("/items", Instrument(m, "cart_add_item", carts.AddItem))
			r.Put("/items/{sku}", Instrument(m, "cart_update_quantity", carts.UpdateQuantity))
			r.Delete("/items/{sku}", Instrument(m, "cart_remove_item", carts.RemoveItem))
			r.Delete("/", Instrument(m, "cart_clear", carts.ClearCart))
			r.Post("/merge", Instrument(m, "cart_merge", carts.Merge))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/prepare", Instrument(m, "checkout_prepare", checkouts.Prepare))
			r.Get("/{id}", Instrument(m, "checkout_get", checkouts.Get))
			r.Post("/{id}/finalize", Instrument(m, "checkout_finalize", checkouts.Finalize))
			r.Post("/{id}/pay", Instrument(m, "checkout_pay", checkouts.Pay))
			r.Post("/{id}/cancel", Instrument(m, "checkout_cancel", checkouts.Cancel))
		})
	})

	return otelhttp.NewHandler(r, "commerce")
}
