package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bobmcallan/lingqian/internal/common"
	"github.com/bobmcallan/lingqian/internal/export"
	"github.com/bobmcallan/lingqian/internal/presentation"
)

// ExportHandler serves the image of the session's finalized result.
type ExportHandler struct {
	logger   *common.Logger
	resolver *SessionResolver
	exports  *export.Service
}

// NewExportHandler creates a new export handler.
func NewExportHandler(logger *common.Logger, resolver *SessionResolver, exports *export.Service) *ExportHandler {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &ExportHandler{logger: logger, resolver: resolver, exports: exports}
}

// ServeHTTP handles GET /api/session/export. A card capture is sent as a PNG
// attachment; a page capture as an HTML view page. Failures leave the session
// as it was.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	s := h.resolver.Resolve(w, r)
	snap, err := s.Machine.Result()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	card, err := presentation.CardFromSnapshot(snap)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	key := export.Key(s.ID, snap.Generation, card.Title)
	res, err := h.exports.Export(r.Context(), key, card)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.logger.Warn().Str("session", s.ID).Str("title", card.Title).Err(err).Msg("export failed")
		writeDomainError(w, err)
		return
	}

	switch res.Kind {
	case export.KindDownload:
		s.MarkSaved(snap.Generation)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", contentDisposition(res.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(res.PNG)))
		w.Header().Set("Cache-Control", "private, no-store")
		w.WriteHeader(http.StatusOK)
		w.Write(res.PNG)
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "private, no-store")
		w.WriteHeader(http.StatusOK)
		w.Write(res.Page)
	}
}

// contentDisposition builds an attachment header whose filename survives
// non-ASCII characters (RFC 6266 / RFC 5987).
func contentDisposition(name string) string {
	return fmt.Sprintf(`attachment; filename="lingqian.png"; filename*=UTF-8''%s`, url.PathEscape(name))
}
