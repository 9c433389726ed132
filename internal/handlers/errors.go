package handlers

import (
	"errors"
	"net/http"

	"github.com/bobmcallan/lingqian/internal/catalog"
	"github.com/bobmcallan/lingqian/internal/divination"
	"github.com/bobmcallan/lingqian/internal/export"
)

// Messages shown to the user for domain errors.
const (
	MsgDeityUnavailable = "此神明籤詩暫不可用，請選擇其他神明"
	MsgDeityNotFound    = "找不到此神明"
	MsgNoResult         = "尚未求得籤詩"
	MsgExportDisabled   = "圖片儲存功能暫不可用"
)

// StatusFor maps a domain error to its HTTP status and user message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrEmptyCatalog):
		return http.StatusUnprocessableEntity, MsgDeityUnavailable
	case errors.Is(err, catalog.ErrDeityNotFound):
		return http.StatusNotFound, MsgDeityNotFound
	case errors.Is(err, divination.ErrNoResult):
		return http.StatusNotFound, MsgNoResult
	case errors.Is(err, divination.ErrInvalidTransition), errors.Is(err, divination.ErrNoDeitySelected):
		return http.StatusConflict, err.Error()
	case errors.Is(err, export.ErrExportDisabled):
		return http.StatusServiceUnavailable, MsgExportDisabled
	case errors.Is(err, export.ErrExportFailed):
		return http.StatusBadGateway, export.FailureMessage
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeDomainError writes err with the status StatusFor assigns.
func writeDomainError(w http.ResponseWriter, err error) {
	status, msg := StatusFor(err)
	WriteError(w, status, msg)
}
