package handlers

import (
	"net/http"

	"github.com/bobmcallan/lingqian/internal/catalog"
	"github.com/bobmcallan/lingqian/internal/common"
)

// CatalogHandler lists the selectable deities.
type CatalogHandler struct {
	logger  *common.Logger
	catalog *catalog.Catalog
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(logger *common.Logger, c *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{logger: logger, catalog: c}
}

// ServeHTTP handles GET /api/deities.
func (h *CatalogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	deities := h.catalog.Deities()
	out := make([]DeityResponse, 0, len(deities))
	for _, d := range deities {
		out = append(out, NewDeityResponse(d))
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"deities": out,
	})
}
