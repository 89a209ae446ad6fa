// Package web holds the embedded HTML templates and static assets.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/tile-leaderboard/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names
const (
	PageHome        = "home"
	PageLeaderboard = "leaderboard"
	PageTiles       = "tiles"
	PageTeams       = "teams"
	PageCompetitor  = "competitor"
	PageError       = "error"
)

var pages = []string{PageHome, PageLeaderboard, PageTiles, PageTeams, PageCompetitor, PageError}

// Page is the data every template receives
type Page struct {
	Title    string
	Active   string
	Channel  string
	DemoMode bool
	Flash    string
	Content  any
}

// ErrorContent is the content of the error page
type ErrorContent struct {
	Status  int
	Message string
}

var funcs = template.FuncMap{
	"rank": func(i int) int { return i + 1 },
	"orDash": func(s *string) string {
		if s == nil || *s == "" {
			return "-"
		}
		return *s
	},
	"formatTime": func(t time.Time) string {
		return t.UTC().Format("Jan 2, 2006 15:04")
	},
	"isoTime": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
	"difficultyClass": func(d domain.Difficulty) string {
		return "difficulty-" + strings.ToLower(string(d))
	},
}

// Renderer executes the page templates
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses every page together with the shared layout
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// Render writes the named page. Output is buffered so a template error never
// leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("rendering %s: unknown page", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", page); err != nil {
		return fmt.Errorf("rendering %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// StaticHandler serves the embedded assets under the given prefix
func StaticHandler(prefix string) http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	return http.StripPrefix(prefix, http.FileServer(http.FS(sub)))
}
