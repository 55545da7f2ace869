package config

import "github.com/bobmcallan/hcm-mcp/internal/common"

// NewDefaultConfig returns a Config with sensible defaults.
// Required values (base URL, identity endpoint, client credentials) have no
// defaults and must come from the config file or environment.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "HCM-MCP",
			Host: "0.0.0.0",
			Port: "8080",
		},
		HCM: HCMConfig{
			APIVersion:            "11.13.18.05",
			FrameworkVersion:      "9",
			RequestTimeoutSeconds: 30,
			TotalTimeoutSeconds:   120,
		},
		Auth: AuthConfig{
			RefreshMarginSeconds: 60,
		},
		Retry: RetryConfig{
			MaxAttempts:       4,
			InitialIntervalMS: 250,
			MaxElapsedSeconds: 60,
		},
		Logging: common.LoggingConfig{
			Level:      "info",
			Outputs:    []string{"console"},
			FilePath:   "logs/hcm-mcp.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}
