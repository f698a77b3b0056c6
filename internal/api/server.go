package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer собирает маршруты HTTP API
func NewServer(h *Handlers, hub *Hub, registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", h.GetState)
	mux.HandleFunc("GET /api/history/{stream}", h.GetHistory)
	mux.HandleFunc("GET /api/status", h.GetStatus)
	mux.HandleFunc("GET /api/journal/{stream}", h.GetJournal)
	mux.HandleFunc("GET /api/export", h.Export)
	mux.HandleFunc("GET /api/ws", hub.ServeWS)

	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return mux
}
