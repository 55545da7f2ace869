package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/bobmcallan/hcm-mcp/internal/common"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig         `toml:"server"`
	HCM       HCMConfig            `toml:"hcm"`
	Auth      AuthConfig           `toml:"auth"`
	Retry     RetryConfig          `toml:"retry"`
	Telemetry TelemetryConfig      `toml:"telemetry"`
	Logging   common.LoggingConfig `toml:"logging"`
}

// ServerConfig contains MCP server settings.
type ServerConfig struct {
	Name string `toml:"name"`
	Host string `toml:"host"`
	Port string `toml:"port"`
}

// HCMConfig contains the Oracle HCM REST API settings.
type HCMConfig struct {
	// BaseURL is the HCM instance root, e.g. "https://instance.oraclecloud.com".
	BaseURL string `toml:"base_url"`
	// APIVersion is the REST resource version in request paths.
	APIVersion string `toml:"api_version"`
	// FrameworkVersion is the REST-Framework-Version header value.
	FrameworkVersion string `toml:"framework_version"`
	// CABundle is an optional path to a PEM bundle of additional trust roots.
	CABundle string `toml:"ca_bundle"`
	// CAReplaceSystem uses the bundle instead of, rather than in addition to,
	// the system trust roots.
	CAReplaceSystem bool `toml:"ca_replace_system"`
	// RequestTimeoutSeconds bounds each HTTP attempt.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	// TotalTimeoutSeconds bounds a whole call including retries.
	TotalTimeoutSeconds int `toml:"total_timeout_seconds"`
}

// AuthConfig contains the identity endpoint settings for the
// client-credentials token exchange.
type AuthConfig struct {
	TokenURL             string `toml:"token_url"`
	ClientID             string `toml:"client_id"`
	ClientSecret         string `toml:"client_secret"`
	Scope                string `toml:"scope"`
	RefreshMarginSeconds int    `toml:"refresh_margin_seconds"`
}

// RetryConfig controls the outbound retry policy.
type RetryConfig struct {
	MaxAttempts       int `toml:"max_attempts"`
	InitialIntervalMS int `toml:"initial_interval_ms"`
	MaxElapsedSeconds int `toml:"max_elapsed_seconds"`
	// RetryNonIdempotent5xx extends 5xx retries to POST/PUT/PATCH/DELETE.
	// Only safe when the remote deduplicates retried writes.
	RetryNonIdempotent5xx bool `toml:"retry_non_idempotent_5xx"`
}

// TelemetryConfig contains OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	Environment string `toml:"environment"`
}

// Load loads configuration with priority: defaults -> file -> env.
// A missing file is not an error; defaults and env still apply.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies HCM_* environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HCM_BASE_URL"); v != "" {
		cfg.HCM.BaseURL = v
	}
	if v := os.Getenv("HCM_API_VERSION"); v != "" {
		cfg.HCM.APIVersion = v
	}
	if v := os.Getenv("REST_FRAMEWORK_VERSION"); v != "" {
		cfg.HCM.FrameworkVersion = v
	}
	if v := os.Getenv("HCM_CA_BUNDLE"); v != "" {
		cfg.HCM.CABundle = v
	}
	if v := os.Getenv("HCM_TOKEN_URL"); v != "" {
		cfg.Auth.TokenURL = v
	}
	if v := os.Getenv("HCM_CLIENT_ID"); v != "" {
		cfg.Auth.ClientID = v
	}
	if v := os.Getenv("HCM_CLIENT_SECRET"); v != "" {
		cfg.Auth.ClientSecret = v
	}
	if v := os.Getenv("HCM_MCP_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("HCM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HCM_REQUEST_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HCM.RequestTimeoutSeconds = n
		}
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
	}
}

// Validate reports every missing required value. A non-nil result is a
// fatal startup error: the process must exit before serving any request.
func (c *Config) Validate() error {
	var missing []string
	if c.HCM.BaseURL == "" {
		missing = append(missing, "hcm.base_url (HCM_BASE_URL)")
	}
	if c.Auth.TokenURL == "" {
		missing = append(missing, "auth.token_url (HCM_TOKEN_URL)")
	}
	if c.Auth.ClientID == "" {
		missing = append(missing, "auth.client_id (HCM_CLIENT_ID)")
	}
	if c.Auth.ClientSecret == "" {
		missing = append(missing, "auth.client_secret (HCM_CLIENT_SECRET)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.HCM.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("hcm.request_timeout_seconds must be positive, got %d", c.HCM.RequestTimeoutSeconds)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}
