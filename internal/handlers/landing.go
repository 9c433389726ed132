package handlers

import (
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobmcallan/lingqian/internal/catalog"
	"github.com/bobmcallan/lingqian/internal/common"
)

// PageHandler serves the deity menu and ritual pages rendered with Go templates.
type PageHandler struct {
	logger    *common.Logger
	templates *template.Template
	catalog   *catalog.Catalog
	resolver  *SessionResolver
	staticDir string
	devMode   bool
}

// NewPageHandler creates a new page handler that loads templates from pagesDir.
func NewPageHandler(logger *common.Logger, pagesDir string, c *catalog.Catalog, resolver *SessionResolver, devMode bool) (*PageHandler, error) {
	templates, err := template.ParseGlob(filepath.Join(pagesDir, "*.html"))
	if err != nil {
		return nil, err
	}
	if _, err := templates.ParseGlob(filepath.Join(pagesDir, "partials", "*.html")); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}

	return &PageHandler{
		logger:    logger,
		templates: templates,
		catalog:   c,
		resolver:  resolver,
		staticDir: filepath.Join(pagesDir, "static"),
		devMode:   devMode,
	}, nil
}

// FindPagesDir locates the pages directory.
func FindPagesDir() string {
	dirs := []string{
		"./pages",
		"../pages",
		"../../pages",
	}

	for _, dir := range dirs {
		if info, err := os.Stat(filepath.Join(dir, "menu.html")); err == nil && !info.IsDir() {
			abs, _ := filepath.Abs(dir)
			return abs
		}
	}

	return "./pages"
}

// ServeMenu handles GET / with the deity menu.
func (h *PageHandler) ServeMenu(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !RequireMethod(w, r, "GET") {
		return
	}

	deities := h.catalog.Deities()
	cards := make([]DeityResponse, 0, len(deities))
	for _, d := range deities {
		cards = append(cards, NewDeityResponse(d))
	}

	h.render(w, "menu.html", map[string]interface{}{
		"Page":    "menu",
		"DevMode": h.devMode,
		"Deities": cards,
	})
}

// ServeRitual handles GET /deity/{key}. Entering the page selects the deity
// for the session unless it is already the session's deity, so a reload
// keeps a ritual in progress.
func (h *PageHandler) ServeRitual(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	key := r.PathValue("key")
	deity, err := h.catalog.Lookup(key)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	s := h.resolver.Resolve(w, r)
	snap := s.Machine.Snapshot()
	if snap.DeityKey != deity.Key {
		if snap, err = s.Machine.SelectDeity(deity.Key); err != nil {
			h.logger.Warn().Str("session", s.ID).Str("deity", deity.Key).Err(err).Msg("failed to select deity")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}

	h.render(w, "ritual.html", map[string]interface{}{
		"Page":     "ritual",
		"DevMode":  h.devMode,
		"Deity":    NewDeityResponse(deity),
		"Snapshot": NewSnapshotResponse(s, snap),
	})
}

func (h *PageHandler) render(w http.ResponseWriter, name string, data map[string]interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error().Str("template", name).Err(err).Msg("failed to render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// StaticFileHandler serves static files (CSS, JS, images).
func (h *PageHandler) StaticFileHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/static/")
	fullPath := filepath.Join(h.staticDir, filepath.FromSlash(path))

	// Security: prevent directory traversal
	absStaticDir, _ := filepath.Abs(h.staticDir)
	absFullPath, _ := filepath.Abs(fullPath)
	if absFullPath != absStaticDir && !strings.HasPrefix(absFullPath, absStaticDir+string(filepath.Separator)) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, fullPath)
}
