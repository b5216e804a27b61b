// Package config provides configuration management for the MYOB MCP server.
// It loads settings from a .env file (when present), environment variables,
// and an optional JSON config file, then validates the result so the server
// starts safely.
//
// Precedence: environment variables win over config-file values, which win
// over built-in defaults. Config-file string values may reference
// environment variables as ${VAR}; an unresolved placeholder is a load-time
// error rather than a silently empty value.
//
// Environment Variables:
//
// MYOB API credentials:
//   - MYOB_CLIENT_ID: API key from the MYOB developer portal (required)
//   - MYOB_CLIENT_SECRET: API secret (required)
//   - MYOB_COMPANY_FILE_ID: default company file GUID (optional)
//   - MYOB_SCOPES: space-separated scope override (optional)
//
// Token persistence:
//   - MYOB_TOKEN_PATH: credential file location (default: ~/.myob-mcp/tokens.json)
//   - MYOB_TOKEN_PASSPHRASE: encrypt the credential file at rest (optional)
//   - REDIS_ADDR: store credentials in Redis instead of a file (optional)
//   - REDIS_PASSWORD: Redis authentication password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//
// Server behavior:
//   - MYOB_CALLBACK_PORT: OAuth callback listener port (default: 33333)
//   - HTTP_TIMEOUT_SECONDS: outbound request timeout (default: 30)
//   - LOG_LEVEL: logging level (default: info)
//   - MYOB_MCP_CONFIG: JSON config file path (default: ~/.myob-mcp/config.json)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/fixxdigital/myob-mcp-server/internal/common/errors"
)

// Defaults used by both Load and the documentation above. Keeping them in
// one place stops the loader and the comments from drifting apart.
const (
	DefaultCallbackPort   = 33333
	DefaultHTTPTimeoutSec = 30
	defaultTokenFileName  = "tokens.json"
	defaultConfigFileName = "config.json"
	configDirName         = ".myob-mcp"
)

// DefaultScopes are requested when MYOB_SCOPES is not set. They cover the
// resource families the tool surface touches.
var DefaultScopes = []string{
	"sme-company-file",
	"sme-general-ledger",
	"sme-sales",
	"sme-purchases",
	"sme-banking",
	"sme-contacts-customer",
	"sme-contacts-supplier",
}

// Config holds all configuration values for the MYOB MCP server.
type Config struct {
	// MYOB API credentials
	ClientID      string // API key, sent as x-myobapi-key on every call
	ClientSecret  string // API secret, used at the token endpoint only
	CompanyFileID string // Default company file GUID (optional)
	Scopes        []string

	// Token persistence
	TokenPath       string // Credential file location
	TokenPassphrase string // When set, the credential file is encrypted
	RedisAddr       string // When set, credentials live in Redis instead
	RedisPassword   string
	RedisDB         int

	// Server behavior
	CallbackPort int
	HTTPTimeout  time.Duration
	LogLevel     string
}

// fileConfig is the JSON shape of the optional config file. Every field is
// optional; string values may embed ${VAR} references.
type fileConfig struct {
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	CompanyFileID string `json:"company_file_id"`
	Scopes        string `json:"scopes"`
	TokenPath     string `json:"token_path"`
	RedisAddr     string `json:"redis_addr"`
	CallbackPort  int    `json:"callback_port"`
}

// Load builds a Config from .env, the environment, and the optional config
// file. It does not validate; call Validate on the result before use.
func Load() (*Config, error) {
	// Missing .env is the normal case outside development
	_ = godotenv.Load()

	cfg := &Config{
		ClientID:        os.Getenv("MYOB_CLIENT_ID"),
		ClientSecret:    os.Getenv("MYOB_CLIENT_SECRET"),
		CompanyFileID:   os.Getenv("MYOB_COMPANY_FILE_ID"),
		Scopes:          parseScopes(os.Getenv("MYOB_SCOPES")),
		TokenPath:       os.Getenv("MYOB_TOKEN_PATH"),
		TokenPassphrase: os.Getenv("MYOB_TOKEN_PASSPHRASE"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getIntEnv("REDIS_DB", 0),
		CallbackPort:    getIntEnv("MYOB_CALLBACK_PORT", DefaultCallbackPort),
		HTTPTimeout:     time.Duration(getIntEnv("HTTP_TIMEOUT_SECONDS", DefaultHTTPTimeoutSec)) * time.Second,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	if err := applyConfigFile(cfg); err != nil {
		return nil, err
	}

	if len(cfg.Scopes) == 0 {
		cfg.Scopes = append([]string(nil), DefaultScopes...)
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = defaultUserPath(defaultTokenFileName)
	}

	return cfg, nil
}

// applyConfigFile overlays values from the JSON config file onto cfg.
// Environment-sourced values are not overwritten: the file only fills gaps.
func applyConfigFile(cfg *Config) error {
	path := os.Getenv("MYOB_MCP_CONFIG")
	if path == "" {
		path = defaultUserPath(defaultConfigFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.ConfigError(fmt.Sprintf("cannot read config file %s: %v", path, err))
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return errors.ConfigError(fmt.Sprintf("config file %s is not valid JSON: %v", path, err))
	}

	fields := []struct {
		dst *string
		src string
	}{
		{&cfg.ClientID, fc.ClientID},
		{&cfg.ClientSecret, fc.ClientSecret},
		{&cfg.CompanyFileID, fc.CompanyFileID},
		{&cfg.TokenPath, fc.TokenPath},
		{&cfg.RedisAddr, fc.RedisAddr},
	}
	for _, f := range fields {
		if *f.dst != "" || f.src == "" {
			continue
		}
		resolved, err := expandPlaceholders(f.src)
		if err != nil {
			return err
		}
		*f.dst = resolved
	}

	if len(cfg.Scopes) == 0 && fc.Scopes != "" {
		resolved, err := expandPlaceholders(fc.Scopes)
		if err != nil {
			return err
		}
		cfg.Scopes = parseScopes(resolved)
	}
	if cfg.CallbackPort == DefaultCallbackPort && fc.CallbackPort != 0 {
		cfg.CallbackPort = fc.CallbackPort
	}

	return nil
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandPlaceholders substitutes ${VAR} references from the environment.
// An unset variable fails the load instead of producing a malformed value
// that would only surface later as an opaque backend rejection.
func expandPlaceholders(s string) (string, error) {
	var missing []string
	resolved := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			missing = append(missing, name)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		return "", errors.ConfigError(fmt.Sprintf("unresolved config placeholder(s): %s", strings.Join(missing, ", ")))
	}
	return resolved, nil
}

// RedirectURI returns the OAuth redirect target for the callback listener.
func (c *Config) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", c.CallbackPort)
}

// String renders the effective configuration without exposing credentials.
// fmt and zap both route through the Stringer, so a config logged whole
// still masks the secret fields.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{ClientID:%s ClientSecret:%s CompanyFileID:%s Scopes:%s TokenPath:%s TokenPassphrase:%s RedisAddr:%s RedisPassword:%s RedisDB:%d CallbackPort:%d HTTPTimeout:%s LogLevel:%s}",
		c.ClientID,
		maskSecret(c.ClientSecret),
		c.CompanyFileID,
		strings.Join(c.Scopes, " "),
		c.TokenPath,
		maskSecret(c.TokenPassphrase),
		c.RedisAddr,
		maskSecret(c.RedisPassword),
		c.RedisDB,
		c.CallbackPort,
		c.HTTPTimeout,
		c.LogLevel,
	)
}

// maskSecret hides a secret's value while still showing whether it is set.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// Validate performs validation on the configuration to ensure required
// fields are present and all values are usable.
//
// Returns a descriptive error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return errors.ConfigError("MYOB_CLIENT_ID is required")
	}
	if c.ClientSecret == "" {
		return errors.ConfigError("MYOB_CLIENT_SECRET is required")
	}

	if c.CallbackPort < 1 || c.CallbackPort > 65535 {
		return errors.ConfigError("MYOB_CALLBACK_PORT must be a valid port number between 1 and 65535")
	}

	if c.CompanyFileID != "" {
		if _, err := uuid.Parse(c.CompanyFileID); err != nil {
			return errors.ConfigError("MYOB_COMPANY_FILE_ID must be a company file GUID")
		}
	}

	if c.RedisAddr != "" {
		if c.RedisDB < 0 || c.RedisDB > 15 {
			return errors.ConfigError("REDIS_DB must be a number between 0 and 15")
		}
	}

	if c.HTTPTimeout <= 0 {
		return errors.ConfigError("HTTP_TIMEOUT_SECONDS must be a positive number")
	}

	if c.TokenPath == "" {
		return errors.ConfigError("MYOB_TOKEN_PATH could not be resolved")
	}

	return nil
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves an integer environment variable value or returns a
// default value if not set or unparsable.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// parseScopes splits a space-separated scope string, dropping blanks.
func parseScopes(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Fields(s)
}

// defaultUserPath resolves a file name inside the per-user config directory.
// Falls back to a relative path when the home directory is unavailable.
func defaultUserPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(configDirName, name)
	}
	return filepath.Join(home, configDirName, name)
}
