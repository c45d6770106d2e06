package api

import (
	"net/http"
	"strconv"

	"github.com/KanavDutta/errorfence/metrics"
)

// StatsProvider snapshots budget statistics
type StatsProvider interface {
	GetSnapshot() *metrics.Snapshot
}

// StatsHandler serves GET /stats. Identities appear by label only.
// The optional ?top=N query trims the identity list to its first N entries.
func StatsHandler(provider StatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := provider.GetSnapshot()

		if raw := r.URL.Query().Get("top"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid_top", "top must be a non-negative integer")
				return
			}
			if n < len(snap.TopIdentities) {
				snap.TopIdentities = snap.TopIdentities[:n]
			}
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, snap)
	}
}
