package divination

import (
	"errors"

	"github.com/bobmcallan/lingqian/internal/catalog"
)

var (
	// ErrInvalidTransition is returned when a trigger is not valid in the
	// current phase. The machine state is left unchanged.
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNoDeitySelected   = errors.New("no deity selected")
	ErrNoResult          = errors.New("no finalized result")

	// ErrEmptyCatalog is catalog.ErrEmptyCatalog, re-exported so callers of
	// Draw do not need the catalog package to match it.
	ErrEmptyCatalog = catalog.ErrEmptyCatalog
)
