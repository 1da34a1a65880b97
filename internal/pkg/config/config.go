package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read by Load.
const DefaultPath = "config.yaml"

// EnvPrefix marks environment variables that override file settings.
// RQL_LOGIC__HANDLERS_TIMEOUT_MS sets logic.handlers_timeout_ms.
const EnvPrefix = "RQL_"

type Config struct {
	Server       ServerConfig        `koanf:"server"`
	Logic        LogicConfig         `koanf:"logic"`
	Variables    map[string]string   `koanf:"variables"`
	Transport    TransportConfig     `koanf:"transport"`
	Storage      StorageConfig       `koanf:"storage"`
	Hooks        HooksConfig         `koanf:"hooks"`
	Certificates []CertificateConfig `koanf:"certificates"`
	Telemetry    TelemetryConfig     `koanf:"telemetry"`
}

type ServerConfig struct {
	Port      int             `koanf:"port"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	// APIKeys protects the /v1 API when non-empty.
	APIKeys []APIKeyConfig `koanf:"api_keys"`
}

// APIKeyConfig is an accepted API key, stored as its SHA-256 hash.
type APIKeyConfig struct {
	Name    string `koanf:"name"`
	KeyHash string `koanf:"key_hash"`
}

// RateLimitConfig limits submissions to the HTTP API. A zero RPS disables
// limiting.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

type LogicConfig struct {
	// HandlersTimeoutMS is the default pre-request handler timeout. Zero makes
	// requests with deferred work wait for explicit continuation.
	HandlersTimeoutMS int  `koanf:"handlers_timeout_ms"`
	VariablesDisabled bool `koanf:"variables_disabled"`
}

// HandlersTimeout returns the handler timeout as a duration.
func (c LogicConfig) HandlersTimeout() time.Duration {
	if c.HandlersTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(c.HandlersTimeoutMS) * time.Millisecond
}

type TransportConfig struct {
	Timeout string `koanf:"timeout"` // Duration string like "30s"
	// BlockPrivateNetworks refuses connections to non-public addresses.
	BlockPrivateNetworks bool `koanf:"block_private_networks"`
}

// TimeoutDuration parses Timeout. An empty value means no timeout.
func (c TransportConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid transport timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite, postgres
	SQLite SQLiteConfig `koanf:"sqlite"`
	// Database is the generic database configuration for multi-dialect support
	Database DatabaseConfig `koanf:"database"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// DatabaseConfig is the generic database configuration supporting multiple dialects.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres
	DSN    string `koanf:"dsn"`    // Data source name / connection string
}

// HooksConfig lists the webhook hooks consulted for every request.
type HooksConfig struct {
	Pre  []HookConfig `koanf:"pre"`
	Post []HookConfig `koanf:"post"`
}

// HookConfig configures a webhook hook.
type HookConfig struct {
	Name string `koanf:"name" validate:"required"`
	URL  string `koanf:"url" validate:"required,url"`
	// Timeout is a duration string like "5s".
	Timeout string `koanf:"timeout"`
	// Order sorts hooks of the same phase; lower runs first.
	Order int `koanf:"order"`
	// OnError is allow or deny (default: deny).
	OnError string            `koanf:"on_error" validate:"omitempty,oneof=allow deny"`
	Retries int               `koanf:"retries" validate:"gte=0,lte=10"`
	Headers map[string]string `koanf:"headers"`
	// AwaitContinue makes requests wait for an explicit continuation after
	// this pre-request hook answered.
	AwaitContinue bool `koanf:"await_continue"`
}

// CertificateConfig seeds the certificate store.
type CertificateConfig struct {
	ID         string `koanf:"id"`
	Type       string `koanf:"type"` // pem or p12
	Cert       string `koanf:"cert"`
	Key        string `koanf:"key"`
	Passphrase string `koanf:"passphrase"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads DefaultPath and the environment.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads the YAML file at path, applies RQL_ environment overrides
// and defaults, and substitutes ${VAR} references in secret-bearing fields.
// A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	defaults := map[string]any{
		"server.port":               8080,
		"logic.handlers_timeout_ms": 2000,
		"transport.timeout":         "30s",
		"storage.type":              "memory",
		"telemetry.service_name":    "request-logic",
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.substitute()
	return &cfg, nil
}

func (c *Config) substitute() {
	for name, v := range c.Variables {
		c.Variables[name] = substituteEnvVars(v)
	}
	c.Storage.Database.DSN = substituteEnvVars(c.Storage.Database.DSN)
	for _, hooks := range [][]HookConfig{c.Hooks.Pre, c.Hooks.Post} {
		for i := range hooks {
			hooks[i].URL = substituteEnvVars(hooks[i].URL)
			for h, v := range hooks[i].Headers {
				hooks[i].Headers[h] = substituteEnvVars(v)
			}
		}
	}
	for i := range c.Certificates {
		c.Certificates[i].Passphrase = substituteEnvVars(c.Certificates[i].Passphrase)
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
