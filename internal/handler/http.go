package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tile-leaderboard/internal/domain"
	"github.com/tile-leaderboard/internal/metrics"
	"github.com/tile-leaderboard/internal/service"
	"github.com/tile-leaderboard/internal/web"
	"github.com/tile-leaderboard/internal/websocket"
)

// Handler provides the HTML pages and JSON API
type Handler struct {
	service  *service.LeaderboardService
	hub      *websocket.Hub
	renderer *web.Renderer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler; hub and m may be nil
func NewHandler(
	service *service.LeaderboardService,
	hub *websocket.Hub,
	renderer *web.Renderer,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		service:  service,
		hub:      hub,
		renderer: renderer,
		metrics:  m,
		logger:   logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(h.metrics.Middleware)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Pages
	r.Get("/", h.Home)
	r.Get("/leaderboard", h.Leaderboard)
	r.Get("/tiles", h.Tiles)
	r.Get("/teams", h.Teams)
	r.Get("/competitor/{rsn}", h.Competitor)
	r.Handle("/static/*", web.StaticHandler("/static/"))

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	if h.hub != nil {
		r.Get("/ws", h.HandleWebSocket)
	}
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.GetStats)
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/tiles", h.GetTiles)
		r.Get("/teams", h.GetTeams)
		r.Get("/teams/{id}", h.GetTeam)
		r.Get("/competitors", h.SearchCompetitors)
		r.Get("/competitors/{rsn}", h.GetCompetitor)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.basicAuth)
			r.Post("/completions", h.RecordCompletion)
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one structured line per request
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error to a status code. Unexpected errors
// are logged and reported without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrAlreadyCompleted):
		h.writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// HealthStatus is the body of /health
type HealthStatus struct {
	Status                 string `json:"status"`
	Connections            int    `json:"websocket_connections"`
	LeaderboardSubscribers int    `json:"leaderboard_subscribers"`
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{Status: "healthy"}
	if h.hub != nil {
		status.Connections = h.hub.GetTotalConnections()
		status.LeaderboardSubscribers = h.hub.GetSubscriberCount(websocket.ChannelLeaderboard)
	}
	h.writeSuccess(w, http.StatusOK, status)
}

// ReadyCheck reports ready once the store answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Error:   "store unavailable",
		})
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}
