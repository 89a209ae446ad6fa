package handler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tile-leaderboard/internal/domain"
	"github.com/tile-leaderboard/internal/web"
	"github.com/tile-leaderboard/internal/websocket"
)

const (
	flashCookie       = "flash"
	flashMaxAge       = 60
	msgCompetitorGone = "Competitor not found!"
)

// query-string error codes understood by the pages
var errorMessages = map[string]string{
	"competitor_not_found": msgCompetitorGone,
}

// Home renders the landing page
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, web.PageHome, web.Page{
		Title:   "Home",
		Active:  "home",
		Content: stats,
	})
}

// Leaderboard renders team standings, individual standings and recent activity
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Leaderboard(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, web.PageLeaderboard, web.Page{
		Title:   "Leaderboard",
		Active:  "leaderboard",
		Channel: websocket.ChannelLeaderboard,
		Content: view,
	})
}

// Tiles renders every tile with its completion count
func (h *Handler) Tiles(w http.ResponseWriter, r *http.Request) {
	tiles, err := h.service.Tiles(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, web.PageTiles, web.Page{
		Title:   "Tiles",
		Active:  "tiles",
		Content: tiles,
	})
}

// Teams renders team rosters and totals
func (h *Handler) Teams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.service.Teams(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, web.PageTeams, web.Page{
		Title:   "Teams",
		Active:  "teams",
		Content: teams,
	})
}

// Competitor renders one competitor's history. Unknown names redirect back to
// the leaderboard with a flash message.
func (h *Handler) Competitor(w http.ResponseWriter, r *http.Request) {
	rsn := chi.URLParam(r, "rsn")

	detail, err := h.service.Competitor(r.Context(), rsn)
	if errors.Is(err, domain.ErrCompetitorNotFound) {
		setFlash(w, msgCompetitorGone)
		http.Redirect(w, r, "/leaderboard?error=competitor_not_found", http.StatusSeeOther)
		return
	}
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, web.PageCompetitor, web.Page{
		Title:   detail.Competitor.RSN,
		Active:  "leaderboard",
		Channel: websocket.CompetitorChannel(detail.Competitor.RSN),
		Content: detail,
	})
}

// render fills the shared page fields and writes the template
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, page web.Page) {
	page.DemoMode = h.service.DemoMode()
	page.Flash = popFlash(w, r)

	if err := h.renderer.Render(w, status, name, page); err != nil {
		h.logger.Error("failed to render page", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// renderError logs the failure and shows the error page
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "Something went wrong while loading this page."
	if domain.IsNotFoundError(err) {
		status = http.StatusNotFound
		message = "The page you asked for does not exist."
	} else {
		h.logger.Error("page request failed", "path", r.URL.Path, "error", err)
	}

	h.render(w, r, status, web.PageError, web.Page{
		Title:   http.StatusText(status),
		Content: web.ErrorContent{Status: status, Message: message},
	})
}

// setFlash stores a one-shot message for the next page
func setFlash(w http.ResponseWriter, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending flash message and clears it. Without a cookie
// a known ?error= code still yields its message.
func popFlash(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(flashCookie); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:    flashCookie,
			Value:   "",
			Path:    "/",
			MaxAge:  -1,
			Expires: time.Unix(0, 0),
		})
		if msg, err := url.QueryUnescape(c.Value); err == nil && msg != "" {
			return msg
		}
	}
	return errorMessages[r.URL.Query().Get("error")]
}
