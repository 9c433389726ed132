package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bobmcallan/lingqian/internal/app"
	"github.com/bobmcallan/lingqian/internal/common"
	"github.com/bobmcallan/lingqian/internal/config"
	"github.com/bobmcallan/lingqian/internal/server"
)

const shutdownTimeout = 10 * time.Second

// configPaths collects repeated -config flags; later files override earlier ones.
type configPaths []string

func (c *configPaths) String() string { return strings.Join(*c, ",") }

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	serverPort  = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP = flag.Int("p", 0, "Server port (shorthand)")
	serverHost  = flag.String("host", "", "Server host (overrides config)")
	catalogPath = flag.String("catalog", "", "Fortune catalog TOML file (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (repeatable)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("lingqian version %s\n", config.GetFullVersion())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the config files, applies flag overrides and validates.
func loadConfig() (*config.Config, error) {
	if len(configFiles) == 0 {
		if path, ok := findConfig(); ok {
			configFiles = append(configFiles, path)
		}
	}

	cfg, err := config.LoadFromFiles(configFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	port := *serverPort
	if *serverPortP != 0 {
		port = *serverPortP
	}
	config.ApplyFlagOverrides(cfg, port, *serverHost, *catalogPath)

	if issues := cfg.Validate(); len(issues) > 0 {
		var b strings.Builder
		b.WriteString("invalid configuration:\n")
		for _, issue := range issues {
			fmt.Fprintf(&b, "  - %s\n", issue)
		}
		b.WriteString("see config/lingqian.toml; values may also come from LINGQIAN_* variables or flags")
		return nil, errors.New(b.String())
	}
	return cfg, nil
}

// run serves until SIGINT/SIGTERM or a listener failure.
func run(cfg *config.Config) error {
	logger := setupLogger(cfg)
	logger.Info().
		Str("environment", cfg.Environment).
		Strs("config_files", configFiles).
		Str("catalog", cfg.Catalog.Path).
		Bool("export", cfg.Export.Enabled).
		Bool("mcp", cfg.MCP.Enabled).
		Msg("configuration loaded")

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error().Err(err).Msg("application close failed")
		}
	}()

	srv := server.New(application)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		logger.Error().Err(err).Msg("server stopped unexpectedly")
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	return nil
}

// findConfig returns the first lingqian.toml found next to the binary or in
// the working directory.
func findConfig() (string, bool) {
	candidates := []string{"lingqian.toml", filepath.Join("config", "lingqian.toml")}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append([]string{
			filepath.Join(dir, "lingqian.toml"),
			filepath.Join(dir, "config", "lingqian.toml"),
		}, candidates...)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func setupLogger(cfg *config.Config) *common.Logger {
	return common.NewLoggerFromConfig(common.LoggingConfig{
		Level:      cfg.Logging.Level,
		Outputs:    cfg.Logging.Outputs,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}
