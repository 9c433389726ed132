// Package export turns a result card into an image the user can keep.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/lingqian/internal/cache"
	"github.com/bobmcallan/lingqian/internal/common"
	"github.com/bobmcallan/lingqian/internal/presentation"
)

var (
	// ErrExportFailed means neither the card nor the page could be captured.
	ErrExportFailed   = errors.New("image export failed")
	ErrExportDisabled = errors.New("image export disabled")
)

// FailureMessage is shown to the user when every capture attempt failed.
const FailureMessage = "儲存圖片失敗，請長按圖片手動儲存"

// Exporter rasterizes HTML documents to PNG.
type Exporter interface {
	// Capture screenshots the element matching selector.
	Capture(ctx context.Context, html []byte, selector string) ([]byte, error)
	// CaptureFull screenshots the whole page.
	CaptureFull(ctx context.Context, html []byte) ([]byte, error)
}

// Kind tells the client how to deliver a Result.
type Kind string

const (
	// KindDownload is a PNG to save as a file.
	KindDownload Kind = "download"
	// KindView is an HTML page showing the image, to open in a new tab.
	KindView Kind = "view"
)

// Result is a finished export.
type Result struct {
	Kind     Kind
	PNG      []byte
	Filename string
	// Page holds the view page markup for KindView.
	Page []byte
}

// Options configures a Service.
type Options struct {
	Timeout   time.Duration
	CacheTTL  time.Duration
	CacheSize int
}

// Service produces exports with a fallback chain and caches the results.
type Service struct {
	exporter Exporter
	renderer *presentation.Renderer
	cache    *cache.Cache[*Result]
	group    singleflight.Group
	timeout  time.Duration
	logger   *common.Logger
}

// NewService creates an export service. A nil exporter disables exports.
func NewService(exporter Exporter, renderer *presentation.Renderer, opts Options, logger *common.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		exporter: exporter,
		renderer: renderer,
		cache:    cache.New[*Result](opts.CacheTTL, opts.CacheSize),
		timeout:  opts.Timeout,
		logger:   logger,
	}
}

// Enabled reports whether an exporter is configured.
func (s *Service) Enabled() bool {
	return s.exporter != nil
}

// Key identifies one finalized result of one session.
func Key(sessionID string, generation uint64, title string) string {
	return cache.MakeKey(sessionID, strconv.FormatUint(generation, 10), title)
}

// Export returns the image of card. The card element is captured first; if
// that fails the whole page is captured and wrapped in a view page. When both
// fail the error wraps ErrExportFailed. Repeated exports of key return the
// cached download, and concurrent exports of key share one capture.
func (s *Service) Export(ctx context.Context, key string, card presentation.Card) (*Result, error) {
	if s.exporter == nil {
		return nil, ErrExportDisabled
	}
	if r, ok := s.cache.Get(key); ok {
		s.logger.Debug().Str("key", key).Msg("export cache hit")
		return r, nil
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		// Shared by every waiter, so one caller leaving must not cancel it.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		r, err := s.produce(cctx, card)
		if err != nil {
			return nil, err
		}
		// A fallback page is not cached so the next export retries the card.
		if r.Kind == KindDownload {
			s.cache.Set(key, r)
		}
		return r, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}

func (s *Service) produce(ctx context.Context, card presentation.Card) (*Result, error) {
	start := time.Now()
	doc, err := s.renderer.Document(card)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	filename := card.Filename()
	png, captureErr := s.exporter.Capture(ctx, doc, presentation.CardSelector)
	if captureErr == nil {
		s.logger.Info().Str("filename", filename).Int("bytes", len(png)).Dur("elapsed", time.Since(start)).Msg("card exported")
		return &Result{Kind: KindDownload, PNG: png, Filename: filename}, nil
	}
	s.logger.Warn().Err(captureErr).Str("filename", filename).Msg("card capture failed, falling back to page capture")

	full, fullErr := s.exporter.CaptureFull(ctx, doc)
	if fullErr != nil {
		s.logger.Error().Err(fullErr).Str("filename", filename).Msg("page capture failed")
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, errors.Join(captureErr, fullErr))
	}

	page, err := s.renderer.ViewPage(card, full)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	s.logger.Info().Str("filename", filename).Int("bytes", len(full)).Dur("elapsed", time.Since(start)).Msg("page exported for viewing")
	return &Result{Kind: KindView, PNG: full, Filename: filename, Page: page}, nil
}

// Forget drops every cached export of a session.
func (s *Service) Forget(sessionID string) {
	s.cache.InvalidatePrefix(cache.MakeKey(sessionID) + ":")
}

// Close releases the exporter.
func (s *Service) Close() error {
	if c, ok := s.exporter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
