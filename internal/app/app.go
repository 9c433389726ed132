package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bobmcallan/lingqian/internal/catalog"
	"github.com/bobmcallan/lingqian/internal/common"
	"github.com/bobmcallan/lingqian/internal/config"
	"github.com/bobmcallan/lingqian/internal/divination"
	"github.com/bobmcallan/lingqian/internal/export"
	"github.com/bobmcallan/lingqian/internal/handlers"
	"github.com/bobmcallan/lingqian/internal/mcp"
	"github.com/bobmcallan/lingqian/internal/presentation"
	"github.com/bobmcallan/lingqian/internal/session"
)

// App holds all application components and dependencies.
type App struct {
	Config *config.Config
	Logger *common.Logger

	Catalog  *catalog.Catalog
	Sessions *session.Manager
	Exports  *export.Service

	// HTTP handlers
	PageHandler    *handlers.PageHandler
	HealthHandler  *handlers.HealthHandler
	VersionHandler *handlers.VersionHandler
	CatalogHandler *handlers.CatalogHandler
	SessionHandler *handlers.SessionHandler
	ExportHandler  *handlers.ExportHandler
	MCPHandler     *mcp.Handler

	stopJanitor context.CancelFunc
}

// New initializes the application with all dependencies.
func New(cfg *config.Config, logger *common.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	// Validate environment setting
	env := strings.ToLower(strings.TrimSpace(cfg.Environment))
	if cfg.IsDevMode() {
		logger.Warn().Msg("running in dev mode")
	} else if env != "prod" && env != "" {
		logger.Warn().
			Str("environment", cfg.Environment).
			Msg("unrecognized environment value, defaulting to prod behavior")
	}

	if err := a.initCatalog(); err != nil {
		return nil, err
	}
	a.initSessions()
	if err := a.initExport(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initHandlers(); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info().Msg("application initialization complete")

	return a, nil
}

// initCatalog loads the fortune catalog.
func (a *App) initCatalog() error {
	c, err := catalog.LoadOrEmbedded(a.Config.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	a.Catalog = c

	source := a.Config.Catalog.Path
	if source == "" {
		source = "embedded"
	}
	keys := make([]string, 0, c.Len())
	for _, d := range c.Deities() {
		keys = append(keys, d.Key)
	}
	a.Logger.Info().Str("source", source).Strs("deities", keys).Msg("catalog loaded")
	return nil
}

// RitualConfig converts the ritual settings into machine configuration.
func RitualConfig(r config.RitualConfig) divination.Config {
	return divination.Config{
		Timing: divination.Timing{
			ShakeMin: r.ShakeMinDuration(),
			ShakeMax: r.ShakeMaxDuration(),
			Rise:     r.RiseDuration(),
			Throw:    r.ThrowDuration(),
			Reveal:   r.RevealDuration(),
		},
		Thresholds: divination.Thresholds{
			Accept:   r.AcceptThreshold,
			Laughing: r.LaughingThreshold,
		},
	}
}

// initSessions creates the session manager and starts its janitor.
func (a *App) initSessions() {
	ritual := RitualConfig(a.Config.Ritual)
	seed := a.Config.Ritual.Seed

	factory := func() *divination.Machine {
		rng := divination.NewRNG()
		if seed != 0 {
			rng = divination.NewSeededRNG(seed)
		}
		return divination.NewMachine(a.Catalog, rng, divination.RealScheduler{}, ritual, a.Logger)
	}

	a.Sessions = session.NewManager(factory, session.Options{
		TTL:         a.Config.Session.TTLDuration(),
		MaxSessions: a.Config.Session.MaxSessions,
	}, a.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	a.stopJanitor = cancel
	a.Sessions.StartJanitor(ctx, a.Config.Session.CleanupIntervalDuration())

	a.Logger.Debug().
		Dur("ttl", a.Config.Session.TTLDuration()).
		Int("max_sessions", a.Config.Session.MaxSessions).
		Msg("session manager started")
}

// initExport creates the image export service. A disabled export keeps a
// service without exporter so the endpoint answers 503.
func (a *App) initExport() error {
	cfg := a.Config.Export

	renderer, err := presentation.NewRenderer(cfg.Background)
	if err != nil {
		return err
	}

	var exporter export.Exporter
	if cfg.Enabled {
		chrome, err := export.NewChromeExporter(export.ChromeOptions{
			RemoteURL:  cfg.ChromeURL,
			Scale:      cfg.Scale,
			Background: cfg.Background,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create image exporter: %w", err)
		}
		exporter = chrome
	} else {
		a.Logger.Info().Msg("image export disabled")
	}

	a.Exports = export.NewService(exporter, renderer, export.Options{
		Timeout:   cfg.TimeoutDuration(),
		CacheTTL:  cfg.CacheTTLDuration(),
		CacheSize: cfg.CacheSize,
	}, a.Logger)

	a.Sessions.OnRemove(a.Exports.Forget)
	return nil
}

// initHandlers initializes all HTTP handlers.
func (a *App) initHandlers() error {
	resolver := handlers.NewSessionResolver(a.Sessions, a.Config.Session.CookieSecure)

	pages, err := handlers.NewPageHandler(a.Logger, handlers.FindPagesDir(), a.Catalog, resolver, a.Config.IsDevMode())
	if err != nil {
		return fmt.Errorf("failed to load page templates: %w", err)
	}
	a.PageHandler = pages
	a.HealthHandler = handlers.NewHealthHandler(a.Logger, a.Sessions.Count)
	a.VersionHandler = handlers.NewVersionHandler(a.Logger)
	a.CatalogHandler = handlers.NewCatalogHandler(a.Logger, a.Catalog)
	a.SessionHandler = handlers.NewSessionHandler(a.Logger, resolver)
	a.ExportHandler = handlers.NewExportHandler(a.Logger, resolver, a.Exports)

	if a.Config.MCP.Enabled {
		a.MCPHandler = mcp.NewHandler(a.Sessions, a.Catalog, a.Logger)
	}

	a.Logger.Debug().Msg("HTTP handlers initialized")
	return nil
}

// Close stops background work and releases the browser.
func (a *App) Close() error {
	if a.stopJanitor != nil {
		a.stopJanitor()
	}
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	var errs []error
	if a.Exports != nil {
		errs = append(errs, a.Exports.Close())
	}
	return errors.Join(errs...)
}
