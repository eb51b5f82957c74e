package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

const (
	maxProductIDLen  = 255
	maxProductIDs    = 100
	maxRequestBody   = 4 * 1024
	queryProductIDs  = "ids"
	queryProductID   = "product_id"
	headerRetryAfter = "Retry-After"
)

var errInvalidProductID = errors.New("invalid product ID")

// Handler exposes the purchase manager over HTTP
type Handler struct {
	config Config
}

// GetProducts resolves ?ids=a,b and returns the resolved catalog.
// Without ids the cached catalog is returned.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get(queryProductIDs)
	if raw == "" {
		h.writeJSON(w, http.StatusOK, ProductsResponse{Products: h.config.Manager.Products()})
		return
	}

	ids := strings.Split(raw, ",")
	if len(ids) > maxProductIDs {
		h.handleError(w, r, fmt.Errorf("too many product IDs (max %d)", maxProductIDs), http.StatusBadRequest)
		return
	}
	for _, id := range ids {
		if len(id) > maxProductIDLen {
			h.handleError(w, r, errInvalidProductID, http.StatusBadRequest)
			return
		}
	}

	products, err := h.config.Manager.GetProducts(r.Context(), ids)
	if err != nil {
		h.handleError(w, r, err, statusForError(err))
		return
	}
	h.writeJSON(w, http.StatusOK, ProductsResponse{Products: products})
}

// Purchase runs a purchase for the product in the JSON body and returns the
// flattened outcome.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.handleError(w, r, fmt.Errorf("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	var req PurchaseRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	if !validProductID(req.ProductID) {
		h.handleError(w, r, errInvalidProductID, http.StatusBadRequest)
		return
	}

	outcome := h.config.Manager.Purchase(r.Context(), req.ProductID)
	if f, ok := outcome.(purchase.Failure); ok {
		h.config.Logger.Warn("purchase request failed",
			purchase.Field{Key: "product_id", Value: req.ProductID},
			purchase.Field{Key: "error", Value: f.Message})
	}
	h.writeJSON(w, statusForOutcome(outcome), purchase.OutcomeResult(outcome))
}

// GetEntitlement reports whether ?product_id= is entitled
func (h *Handler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get(queryProductID)
	if !validProductID(id) {
		h.handleError(w, r, errInvalidProductID, http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, EntitlementResponse{
		ProductID: id,
		Entitled:  h.config.Manager.IsPurchased(id),
	})
}

// ListEntitlements returns every entitled product
func (h *Handler) ListEntitlements(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, EntitlementsResponse{Entitlements: h.config.Manager.Entitlements()})
}

// Restore asks the platform to redeliver every entitlement. The redelivered
// grants are applied asynchronously, so a success is reported as 202.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.handleError(w, r, fmt.Errorf("method not allowed"), http.StatusMethodNotAllowed)
		return
	}
	if err := h.config.Manager.RestorePurchases(r.Context()); err != nil {
		h.handleError(w, r, err, statusForError(err))
		return
	}
	h.writeJSON(w, http.StatusAccepted, purchase.ErrorResult(nil))
}

func validProductID(id string) bool {
	return strings.TrimSpace(id) != "" && len(id) <= maxProductIDLen
}

func statusForOutcome(o purchase.Outcome) int {
	switch v := o.(type) {
	case purchase.Success, purchase.UserCancelled:
		return http.StatusOK
	case purchase.PendingAuthorization:
		return http.StatusAccepted
	case purchase.NoSuchProduct:
		return http.StatusNotFound
	case purchase.Failure:
		return statusForError(v)
	default:
		return http.StatusInternalServerError
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, purchase.ErrClosed), errors.Is(err, purchase.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, purchase.ErrVerificationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, purchase.ErrUnknownProducts):
		return http.StatusNotFound
	case errors.Is(err, purchase.ErrCatalogFailure), errors.Is(err, purchase.ErrPlatformFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusServiceUnavailable {
		w.Header().Set(headerRetryAfter, "30")
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.config.Logger.Debug("failed to encode response", purchase.Field{Key: "error", Value: err.Error()})
	}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}
	h.writeJSON(w, statusCode, map[string]string{"error": err.Error()})
}
