package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tile-leaderboard/internal/domain"
	"github.com/tile-leaderboard/internal/service"
)

type contextKey string

const adminContextKey contextKey = "admin"

// maxBodyBytes caps admin request bodies
const maxBodyBytes = 1 << 16

// GetStats returns the row counts as a flat JSON object
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// GetLeaderboard returns the combined leaderboard view
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Leaderboard(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, view)
}

// GetTiles returns the tile summary, optionally narrowed with ?difficulty=
func (h *Handler) GetTiles(w http.ResponseWriter, r *http.Request) {
	var (
		tiles []domain.TileSummary
		err   error
	)
	if raw := r.URL.Query().Get("difficulty"); raw != "" {
		d, perr := domain.ParseDifficulty(raw)
		if perr != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, perr))
			return
		}
		tiles, err = h.service.TilesByDifficulty(r.Context(), d)
	} else {
		tiles, err = h.service.Tiles(r.Context())
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, tiles)
}

// GetTeams returns the team rosters
func (h *Handler) GetTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.service.Teams(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, teams)
}

// GetTeam returns one team's roster
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: team id must be a number", domain.ErrInvalidRequest))
		return
	}
	team, err := h.service.Team(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, team)
}

// SearchCompetitors backs the rsn autocomplete: ?q= is a case-insensitive prefix
func (h *Handler) SearchCompetitors(w http.ResponseWriter, r *http.Request) {
	matches, err := h.service.SearchCompetitors(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, matches)
}

// GetCompetitor returns one competitor's detail
func (h *Handler) GetCompetitor(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Competitor(r.Context(), chi.URLParam(r, "rsn"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, detail)
}

// RecordCompletion records a completion submitted by an admin
func (h *Handler) RecordCompletion(w http.ResponseWriter, r *http.Request) {
	var sub domain.CompletionSubmission
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: malformed body", domain.ErrInvalidRequest))
		return
	}

	event, err := h.service.RecordCompletion(r.Context(), service.SourceAPI, sub)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if admin, ok := adminFromContext(r.Context()); ok {
		h.logger.Info("completion recorded by admin",
			"admin", admin.Username,
			"rsn", event.RSN,
			"tile_id", event.TileID,
		)
	}
	h.writeSuccess(w, http.StatusCreated, event)
}

// basicAuth checks HTTP basic credentials against the admin users
func (h *Handler) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			h.unauthorized(w)
			return
		}

		admin, err := h.service.Authenticate(r.Context(), username, password)
		if errors.Is(err, domain.ErrInvalidCredentials) {
			h.logger.Warn("admin authentication failed", "username", username)
			h.unauthorized(w)
			return
		}
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), adminContextKey, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="tile-leaderboard admin", charset="UTF-8"`)
	h.writeError(w, http.StatusUnauthorized, domain.ErrInvalidCredentials)
}

func adminFromContext(ctx context.Context) (*domain.AdminUser, bool) {
	admin, ok := ctx.Value(adminContextKey).(*domain.AdminUser)
	return admin, ok
}
