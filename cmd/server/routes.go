package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KanavDutta/errorfence/api"
	"github.com/KanavDutta/errorfence/cmd/server/handlers"
	"github.com/KanavDutta/errorfence/metrics"
	"github.com/KanavDutta/errorfence/pkg/errorfence"
)

func newMux(fence *errorfence.Fence, stats *metrics.Metrics, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/path", fence.Middleware(http.HandlerFunc(handlers.Payment)))
	mux.Handle("GET /health", handlers.Health(fence.Store()))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("GET /stats", api.StatsHandler(stats))
	mux.HandleFunc("GET /dashboard", dashboardHandler)
	api.NewHandler(fence.Gate(), api.WithAdminToken(fence.Config().AdminToken)).Register(mux)
	mux.HandleFunc("GET /{$}", rootHandler)

	return mux
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"service": "errorfence",
		"endpoints": map[string]string{
			"GET /path":               "Example payment lookup behind the error budget (?fail=true answers 400)",
			"GET /buckets/{identity}": "Inspect an identity's bucket (admin token)",
			"PUT /buckets/{identity}": "Reset an identity's bucket (admin token)",
			"GET /stats":              "Budget statistics (JSON)",
			"GET /metrics":            "Prometheus metrics",
			"GET /dashboard":          "Dashboard (HTML)",
			"GET /health":             "Health check",
		},
	})
}
