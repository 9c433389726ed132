package config

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "prod",
		Server: ServerConfig{
			Port: 4280,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Outputs:    []string{"console"},
			FilePath:   "logs/lingqian.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		Ritual: RitualConfig{
			ShakeMin:          "2s",
			ShakeMax:          "3s",
			Rise:              "1500ms",
			Throw:             "1s",
			Reveal:            "1200ms",
			AcceptThreshold:   0.50,
			LaughingThreshold: 0.75,
		},
		Session: SessionConfig{
			TTL:             "30m",
			CleanupInterval: "1m",
			MaxSessions:     10000,
		},
		Export: ExportConfig{
			Enabled:    true,
			Timeout:    "20s",
			Scale:      2,
			Background: "#fff9e6",
			CacheTTL:   "30m",
			CacheSize:  512,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
	}
}
