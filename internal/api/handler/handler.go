package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/DIvanCode/rwlatch/internal/api"
	. "github.com/DIvanCode/rwlatch/pkg/errors"
	"github.com/DIvanCode/rwlatch/pkg/latch"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type (
	Handler struct {
		monitor  latchMonitor
		gatherer prometheus.Gatherer
	}

	latchMonitor interface {
		Snapshot() map[string]latch.Stats
		Lookup(name string) (latch.Stats, error)
	}
)

func NewHandler(monitor latchMonitor, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		monitor:  monitor,
		gatherer: gatherer,
	}
}

func (h *Handler) Register(mux *chi.Mux) {
	mux.Get("/latches", h.handleListLatches)
	mux.Get("/latches/*", h.handleGetLatch)
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

func (h *Handler) handleListLatches(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, api.LatchesResponse{Latches: h.monitor.Snapshot()})
}

func (h *Handler) handleGetLatch(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := h.monitor.Lookup(name)
	if err != nil {
		if errors.Is(err, ErrLatchNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, api.LatchResponse{Name: name, Stats: stats})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
