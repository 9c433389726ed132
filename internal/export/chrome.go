package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/bobmcallan/lingqian/internal/common"
)

// ChromeOptions configures a ChromeExporter.
type ChromeOptions struct {
	// RemoteURL is the DevTools endpoint of a running browser such as
	// ws://127.0.0.1:9222. Empty launches a local headless Chrome.
	RemoteURL  string
	Width      int64
	Height     int64
	Scale      float64
	Background string
}

// ChromeExporter rasterizes HTML with a headless Chrome over the DevTools
// protocol. Each capture runs in its own tab of a shared browser.
type ChromeExporter struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	opts     ChromeOptions
	bg       *cdp.RGBA
	logger   *common.Logger
}

// NewChromeExporter prepares the browser allocator. The browser itself is
// started lazily by the first capture.
func NewChromeExporter(opts ChromeOptions, logger *common.Logger) (*ChromeExporter, error) {
	if opts.Width <= 0 {
		opts.Width = 480
	}
	if opts.Height <= 0 {
		opts.Height = 800
	}
	if opts.Scale <= 0 {
		opts.Scale = 2
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}

	bg, err := parseHexColor(opts.Background)
	if err != nil {
		return nil, err
	}

	var allocCtx context.Context
	var cancel context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, cancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
		logger.Info().Str("url", opts.RemoteURL).Msg("image export using remote browser")
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("hide-scrollbars", true),
		)
		allocCtx, cancel = chromedp.NewExecAllocator(context.Background(), execOpts...)
		logger.Info().Msg("image export using local headless browser")
	}

	return &ChromeExporter{
		allocCtx: allocCtx,
		cancel:   cancel,
		opts:     opts,
		bg:       bg,
		logger:   logger,
	}, nil
}

// Capture renders html and screenshots the first element matching selector.
func (e *ChromeExporter) Capture(ctx context.Context, html []byte, selector string) ([]byte, error) {
	var buf []byte
	err := e.run(ctx, html,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("element capture: %w", err)
	}
	return buf, nil
}

// CaptureFull renders html and screenshots the whole page as PNG.
func (e *ChromeExporter) CaptureFull(ctx context.Context, html []byte) ([]byte, error) {
	var buf []byte
	err := e.run(ctx, html,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("page capture: %w", err)
	}
	return buf, nil
}

// Close shuts the browser down.
func (e *ChromeExporter) Close() error {
	e.cancel()
	return nil
}

func (e *ChromeExporter) run(ctx context.Context, html []byte, actions ...chromedp.Action) error {
	tabCtx, cancelTab := chromedp.NewContext(e.allocCtx)
	defer cancelTab()

	// Closing the tab when the caller gives up aborts the pending actions.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	url := "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(html)
	all := []chromedp.Action{
		chromedp.EmulateViewport(e.opts.Width, e.opts.Height, chromedp.EmulateScale(e.opts.Scale)),
		emulation.SetDefaultBackgroundColorOverride().WithColor(e.bg),
		chromedp.Navigate(url),
	}
	all = append(all, actions...)

	if err := chromedp.Run(tabCtx, all...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// parseHexColor parses "#rgb" or "#rrggbb". Empty yields opaque white.
func parseHexColor(s string) (*cdp.RGBA, error) {
	if s == "" {
		return &cdp.RGBA{R: 255, G: 255, B: 255, A: 1}, nil
	}
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return nil, fmt.Errorf("invalid background colour %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid background colour %q: %w", s, err)
	}
	return &cdp.RGBA{
		R: int64(v >> 16 & 0xff),
		G: int64(v >> 8 & 0xff),
		B: int64(v & 0xff),
		A: 1,
	}, nil
}
