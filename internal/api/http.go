package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aganoob/mercadona-mcp/internal/cart"
	"github.com/aganoob/mercadona-mcp/internal/mercadona"
	"github.com/aganoob/mercadona-mcp/internal/profile"
	"github.com/aganoob/mercadona-mcp/internal/replenish"
)

const maxRequestBodySize = 1 << 20 // 1MB

// NewHTTPHandler builds the local management API. It is meant to be served
// on the loopback interface only; it carries no authentication of its own.
func NewHTTPHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth())
	r.Get("/status", handleStatus(deps))

	r.Get("/profile", handleGetProfile(deps))
	r.Put("/profile/credentials", handlePutCredentials(deps))
	r.Put("/profile/location", handlePutLocation(deps))

	r.Get("/search", handleSearch(deps))
	r.Get("/products/{id}", handleGetProduct(deps))

	r.Get("/cart", handleGetCart(deps))
	r.Post("/cart/items", handleAddCartItems(deps))
	r.Delete("/cart/items/{id}", handleRemoveCartItem(deps))
	r.Delete("/cart", handleClearCart(deps))

	r.Get("/orders", handleListOrders(deps))

	r.Post("/recommendations", handleComputeRecommendations(deps))
	r.Get("/recommendations", handleGetRecommendations(deps))

	return r
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, buildStatus(deps.newClient().Session()))
	}
}

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := deps.Profile.Load()

		// Never echo the token over the wire; report presence only.
		out := map[string]any{
			"authenticated": p.Credential != nil && p.Credential.Token != "",
		}
		if p.Location != nil {
			out["postal_code"] = p.Location.PostalCode
			out["warehouse_id"] = p.Location.WarehouseID
		}
		writeJSON(w, out)
	}
}

func handlePutCredentials(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var cred profile.Credential
		if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if cred.Token == "" || cred.CustomerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "token and uuid are required")
			return
		}

		if err := deps.Profile.Save(&cred, nil); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save credentials: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "saved"})
	}
}

func handlePutLocation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var loc profile.Location
		if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if loc.PostalCode == "" || loc.WarehouseID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "postal_code and warehouse_id are required")
			return
		}

		if err := deps.Profile.Save(nil, &loc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save location: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "saved"})
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}

		products, err := deps.newClient().Search(r.Context(), query)
		if err != nil {
			remoteError(w, "search failed", err)
			return
		}
		writeJSON(w, summarizeProducts(products))
	}
}

func handleGetProduct(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		product, err := deps.newClient().GetProduct(r.Context(), id)
		if err != nil {
			var statusErr *mercadona.StatusError
			if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
				httpError(w, http.StatusNotFound, "not_found", "product not found")
				return
			}
			remoteError(w, "product lookup failed", err)
			return
		}
		writeJSON(w, product)
	}
}

func handleGetCart(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := deps.newClient().GetCart(r.Context())
		if err != nil {
			remoteError(w, "failed to fetch cart", err)
			return
		}
		writeJSON(w, buildCartView(c))
	}
}

func handleAddCartItems(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var changes []cart.Change
		if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(changes) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one item is required")
			return
		}

		if err := cart.NewReconciler(deps.newClient()).AddBulk(r.Context(), changes); err != nil {
			remoteError(w, "failed to add items", err)
			return
		}
		writeJSON(w, map[string]string{"status": "updated"})
	}
}

func handleRemoveCartItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := cart.NewReconciler(deps.newClient()).Remove(r.Context(), id); err != nil {
			remoteError(w, "failed to remove item", err)
			return
		}
		writeJSON(w, map[string]string{"status": "updated"})
	}
}

func handleClearCart(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cart.NewReconciler(deps.newClient()).Clear(r.Context()); err != nil {
			remoteError(w, "failed to clear cart", err)
			return
		}
		writeJSON(w, map[string]string{"status": "cleared"})
	}
}

func handleListOrders(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if s := r.URL.Query().Get("limit"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = v
		}

		orders, err := deps.newClient().ListOrders(r.Context(), limit)
		if err != nil {
			remoteError(w, "failed to list orders", err)
			return
		}
		if orders == nil {
			orders = []mercadona.Order{}
		}
		writeJSON(w, orders)
	}
}

func handleComputeRecommendations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := deps.newClient()
		report, err := replenish.NewEngine(client, deps.Cache).Compute(r.Context())
		if err != nil {
			remoteError(w, "failed to compute recommendations", err)
			return
		}
		if err := report.Write(deps.Config.Report.File); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save report: %v", err)
			return
		}
		writeJSON(w, report)
	}
}

func handleGetRecommendations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := replenish.ReadReport(deps.Config.Report.File)
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "no recommendation report found")
			return
		}
		writeJSON(w, report)
	}
}

// remoteError maps errors from the remote store into the error envelope: a
// missing session is the caller's problem, everything else is an upstream
// failure.
func remoteError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, mercadona.ErrNotAuthenticated) {
		httpError(w, http.StatusUnauthorized, "authentication_error", "not authenticated; configure credentials first")
		return
	}
	httpError(w, http.StatusBadGateway, "api_error", "%s: %v", msg, err)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
