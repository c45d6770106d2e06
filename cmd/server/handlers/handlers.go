// Package handlers holds the example downstream served behind the error budget.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// PixKey is the payload returned by Payment
type PixKey struct {
	PixKey string `json:"pixKey"`
	Value  int    `json:"value"`
}

// Payment looks up a fake pix key. With ?fail=true it answers 400, which
// costs the caller one token.
func Payment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	if r.URL.Query().Get("fail") == "true" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Pix key not found"})
		return
	}

	writeJSON(w, http.StatusOK, PixKey{PixKey: "fake-pix-key", Value: 100})
}

// Pinger is implemented by stores that can report their health
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Store     string `json:"store"`
	Timestamp string `json:"timestamp"`
}

// Health returns a health check handler. When store implements Pinger its
// reachability decides between 200 and 503.
func Health(store interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:    "healthy",
			Service:   "errorfence",
			Store:     "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		status := http.StatusOK

		if p, ok := store.(Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				resp.Status = "unhealthy"
				resp.Store = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
