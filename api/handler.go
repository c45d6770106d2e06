// Package api serves the bucket inspection and stats endpoints.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"k8s.io/klog/v2"

	"github.com/KanavDutta/errorfence/core"
	"github.com/KanavDutta/errorfence/gate"
	"github.com/KanavDutta/errorfence/store"
)

// Handler serves /buckets/{identity}
type Handler struct {
	gate       *gate.Gate
	adminToken string
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithAdminToken sets the bearer token the bucket routes require.
// Without one the routes answer 403 to everyone.
func WithAdminToken(token string) HandlerOption {
	return func(h *Handler) {
		h.adminToken = token
	}
}

// NewHandler creates a new API handler
func NewHandler(g *gate.Gate, opts ...HandlerOption) *Handler {
	h := &Handler{gate: g}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register installs the bucket routes on mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /buckets/{identity}", h.requireAdmin(h.GetBucket))
	mux.Handle("PUT /buckets/{identity}", h.requireAdmin(h.PutBucket))
}

// requireAdmin admits only requests carrying "Bearer <admin token>".
func (h *Handler) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken == "" {
			writeError(w, http.StatusForbidden, "admin_disabled", "No admin token is configured")
			return
		}

		token, err := core.ExtractBearer()(r.Header.Get("Authorization"))
		if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="errorfence-admin"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Admin token required")
			return
		}
		next(w, r)
	})
}

// BucketResponse describes one identity's budget
type BucketResponse struct {
	Identity        string `json:"identity"`
	TokensCount     int64  `json:"tokens_count"`     // As stored
	EffectiveTokens int64  `json:"effective_tokens"` // What the next request would see after refill
	Capacity        int64  `json:"capacity"`
	LastRequest     int64  `json:"last_request"`             // Epoch milliseconds
	NextRefillAt    int64  `json:"next_refill_at,omitempty"` // Epoch milliseconds, absent when full
}

// ResetRequest is the body of PUT /buckets/{identity}
type ResetRequest struct {
	TokensCount *int64 `json:"tokens_count"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// GetBucket handles GET /buckets/{identity}
func (h *Handler) GetBucket(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	snap, err := h.gate.Inspect(r.Context(), identity)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no bucket for identity")
		return
	case err != nil:
		klog.Errorf("api: inspecting %s: %v", core.IdentityLabel(identity), err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}

	resp := BucketResponse{
		Identity:        identity,
		TokensCount:     snap.Stored.TokensCount,
		EffectiveTokens: snap.Effective.TokensCount,
		Capacity:        snap.Capacity,
		LastRequest:     snap.Stored.LastRequest,
	}
	if !snap.NextRefill.IsZero() {
		resp.NextRefillAt = snap.NextRefill.UnixMilli()
	}
	writeJSON(w, http.StatusOK, resp)
}

// PutBucket handles PUT /buckets/{identity}
func (h *Handler) PutBucket(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.TokensCount == nil {
		writeError(w, http.StatusBadRequest, "missing_tokens_count", "tokens_count is required")
		return
	}

	b, err := h.gate.Reset(r.Context(), identity, *req.TokensCount)
	switch {
	case errors.Is(err, gate.ErrTokensOutOfRange):
		writeError(w, http.StatusBadRequest, "invalid_tokens_count", err.Error())
		return
	case err != nil:
		klog.Errorf("api: resetting %s: %v", core.IdentityLabel(identity), err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, BucketResponse{
		Identity:        identity,
		TokensCount:     b.TokensCount,
		EffectiveTokens: b.TokensCount,
		Capacity:        h.gate.Policy().Capacity,
		LastRequest:     b.LastRequest,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
