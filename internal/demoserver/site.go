// Package demoserver is a small bank site whose pages can be swapped, one by
// one, for phishing-kit clones. It gives content detection with page fetching
// something realistic to score.
package demoserver

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cipherlens/cipherlens/internal/logging"
)

// Variant names which version of a page is served.
type Variant string

const (
	VariantGenuine Variant = "genuine"
	VariantKit     Variant = "kit"
)

var ErrUnknownPage = errors.New("unknown page")

// Site serves the lure pages and the control endpoints under /lure.
type Site struct {
	cfg    Config
	pages  map[string]Page
	logger logging.Logger

	mu      sync.RWMutex
	current map[string]Variant
}

// NewSite builds the site from Pages. A nil logger discards logs.
func NewSite(cfg Config, logger logging.Logger) *Site {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	s := &Site{
		cfg:     cfg,
		pages:   make(map[string]Page),
		current: make(map[string]Variant),
		logger:  logger.With(logging.Field{Key: "component", Value: "lure-site"}),
	}
	for _, p := range Pages() {
		s.pages[p.Path] = p
		s.current[p.Path] = VariantGenuine
	}
	if cfg.Kits {
		s.SwapAll(VariantKit)
	}
	return s
}

// Swap serves v at path from now on. Pages without a kit stay genuine.
func (s *Site) Swap(path string, v Variant) (Variant, error) {
	p, ok := s.pages[path]
	if !ok {
		return "", ErrUnknownPage
	}
	if v != VariantKit || p.Kit == "" {
		v = VariantGenuine
	}
	s.mu.Lock()
	s.current[path] = v
	s.mu.Unlock()
	s.logger.Info("page swapped", logging.Field{Key: "path", Value: path}, logging.Field{Key: "variant", Value: string(v)})
	return v, nil
}

// SwapAll moves every page to v.
func (s *Site) SwapAll(v Variant) {
	for path := range s.pages {
		_, _ = s.Swap(path, v)
	}
}

// PageState is what the control endpoints report per page.
type PageState struct {
	Path        string  `json:"path"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
	HasKit      bool    `json:"has_kit"`
}

// State lists every page sorted by path.
func (s *Site) State() []PageState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PageState, 0, len(s.pages))
	for path, p := range s.pages {
		out = append(out, PageState{
			Path:        path,
			Description: p.Description,
			Variant:     s.current[path],
			HasKit:      p.Kit != "",
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Handler returns the pages and the control endpoints as one handler.
func (s *Site) Handler() http.Handler {
	r := chi.NewRouter()
	for path := range s.pages {
		r.Get(path, s.pageHandler(path))
	}
	r.Get("/static/*", s.staticHandler)

	r.Route("/lure", func(r chi.Router) {
		r.Get("/", s.controlPanelHandler)
		r.Get("/state", s.stateHandler)
		r.Post("/swap", s.swapHandler)
		r.Post("/swap-all", s.swapAllHandler)
		r.Post("/reset", s.resetHandler)
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Site) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("lure site listening", logging.Field{Key: "addr", Value: s.cfg.Addr})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// pageHandler serves the current variant. A variant query parameter
// overrides it for one request, so genuine and kit can be fetched side by
// side.
func (s *Site) pageHandler(path string) http.HandlerFunc {
	p := s.pages[path]
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		v := s.current[path]
		s.mu.RUnlock()
		if q := Variant(r.URL.Query().Get("variant")); q == VariantGenuine || q == VariantKit {
			v = q
		}

		body := p.Genuine
		if v == VariantKit && p.Kit != "" {
			body = p.Kit
		} else {
			for k, val := range p.Headers {
				w.Header().Set(k, val)
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

func (s *Site) staticHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	_, _ = w.Write([]byte("// " + r.URL.Path + "\n"))
}

func (s *Site) stateHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.State())
}

func (s *Site) swapHandler(w http.ResponseWriter, r *http.Request) {
	path := r.FormValue("path")
	v, err := s.Swap(path, Variant(r.FormValue("variant")))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": path, "variant": v})
}

func (s *Site) swapAllHandler(w http.ResponseWriter, _ *http.Request) {
	s.SwapAll(VariantKit)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "every page with a kit now serves it"})
}

func (s *Site) resetHandler(w http.ResponseWriter, _ *http.Request) {
	s.SwapAll(VariantGenuine)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "every page is genuine again"})
}

func (s *Site) controlPanelHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := controlPanel.Execute(w, s.State()); err != nil {
		s.logger.Warn("rendering control panel", logging.Field{Key: "error", Value: err})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var controlPanel = template.Must(template.New("control").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Lure Site</title>
    <style>
        body { font-family: system-ui, sans-serif; max-width: 900px; margin: 0 auto; padding: 20px; }
        table { border-collapse: collapse; width: 100%; }
        td, th { border-bottom: 1px solid #ddd; padding: 8px; text-align: left; }
        .kit { color: #b00020; font-weight: bold; }
    </style>
</head>
<body>
    <h1>Lure Site</h1>
    <p>Swap a page to its kit, then score it with <code>cipherlens scan --fetch URL</code>
       or POST /api/detect/content with "fetch": true. Add <code>?variant=kit</code> to any
       page URL to fetch the kit once without swapping.</p>
    <form method="POST" action="/lure/swap-all"><button>Serve every kit</button></form>
    <form method="POST" action="/lure/reset"><button>Reset to genuine</button></form>
    <table>
        <tr><th>Page</th><th>Serving</th><th></th></tr>
        {{range .}}
        <tr>
            <td><a href="{{.Path}}">{{.Path}}</a><br><small>{{.Description}}</small></td>
            <td{{if eq .Variant "kit"}} class="kit"{{end}}>{{.Variant}}</td>
            <td>{{if .HasKit}}
                <form method="POST" action="/lure/swap">
                    <input type="hidden" name="path" value="{{.Path}}">
                    <input type="hidden" name="variant" value="{{if eq .Variant "kit"}}genuine{{else}}kit{{end}}">
                    <button>{{if eq .Variant "kit"}}Restore genuine{{else}}Swap to kit{{end}}</button>
                </form>
            {{end}}</td>
        </tr>
        {{end}}
    </table>
</body>
</html>`))
