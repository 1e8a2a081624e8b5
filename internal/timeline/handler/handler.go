// Package handler serves the layout API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/lanes"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/cache"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/internal/timeline/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/chronolanes/pkg/metrics"
)

type LayoutService interface {
	Layout(ctx context.Context, req timeline.LayoutRequest) (lanes.KindResults, error)
	Kinds(ctx context.Context) ([]string, error)
	Categories(ctx context.Context) ([]string, error)
}

type Handler struct {
	service  LayoutService
	cache    *cache.LayoutCache
	defaults validator.Defaults
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Handler. layoutCache and m may be nil.
func New(svc LayoutService, layoutCache *cache.LayoutCache, defaults validator.Defaults, m *metrics.Metrics) *Handler {
	return &Handler{
		service:  svc,
		cache:    layoutCache,
		defaults: defaults,
		metrics:  m,
		logger:   slog.Default().With("component", "layout-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/subjects/layout", h.Layout)
	mux.HandleFunc("GET /api/v1/categories", h.Categories)
	mux.HandleFunc("GET /api/v1/kinds", h.Kinds)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Layout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, err := validator.ParseLayoutRequest(r.URL.Query(), h.defaults)
	if err != nil {
		h.countRequest("invalid")
		h.writeValidationError(w, err)
		return
	}

	var results lanes.KindResults
	cacheStatus := "disabled"
	if h.cache != nil {
		var hit bool
		results, hit, err = h.cache.GetOrCompute(ctx, req, func(ctx context.Context) (lanes.KindResults, error) {
			return h.service.Layout(ctx, req)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		results, err = h.service.Layout(ctx, req)
	}

	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status == http.StatusNotFound {
			h.countRequest("not_found")
		} else {
			h.countRequest("error")
			log.Error("layout failed", "kind", req.Kind, "error", err)
		}
		h.writeError(w, status, errorMessage(err, status))
		return
	}

	latency := time.Since(start)
	h.countRequest("ok")
	if h.metrics != nil {
		h.metrics.LayoutLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	}
	log.Info("layout completed",
		"kind", req.Kind,
		"kinds", len(results),
		"page", req.Page,
		"subject", req.Subject,
		"excluded", len(req.Excluded),
		"cache", cacheStatus,
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, results)
}

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.service.Categories(r.Context())
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		logger.FromContext(r.Context()).Error("listing categories failed", "error", err)
		h.writeError(w, status, errorMessage(err, status))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]string{"categories": cats})
}

func (h *Handler) Kinds(w http.ResponseWriter, r *http.Request) {
	kinds, err := h.service.Kinds(r.Context())
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		logger.FromContext(r.Context()).Error("listing kinds failed", "error", err)
		h.writeError(w, status, errorMessage(err, status))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]string{"kinds": kinds})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) countRequest(result string) {
	if h.metrics != nil {
		h.metrics.LayoutRequestsTotal.WithLabelValues(result).Inc()
	}
}

// errorMessage keeps internal detail out of 5xx responses.
func errorMessage(err error, status int) string {
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		return appErr.Message
	}
	switch status {
	case http.StatusServiceUnavailable:
		return "subject store unavailable"
	case http.StatusGatewayTimeout:
		return "request timed out"
	case http.StatusInternalServerError:
		return "layout failed"
	}
	return err.Error()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var vErr *validator.ValidationError
	if apperrors.As(err, &vErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": vErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}
