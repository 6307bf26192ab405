package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DECKSTREAM_"

// Config is the top-level application configuration.
type Config struct {
	Stream  StreamConfig  `yaml:"stream"`
	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	Layouts LayoutsConfig `yaml:"layouts"`
	Gateway GatewayConfig `yaml:"gateway"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// StreamConfig holds generation stream settings.
type StreamConfig struct {
	BaseURL           string               `yaml:"base_url"`
	InactivityTimeout time.Duration        `yaml:"inactivity_timeout"`
	ConnTimeout       time.Duration        `yaml:"conn_timeout"`
	HeaderTimeout     time.Duration        `yaml:"header_timeout"`
	ReadBufferSize    int                  `yaml:"read_buffer_size"`
	MaxLineBytes      int                  `yaml:"max_line_bytes"`
	ConnectRate       float64              `yaml:"connect_rate"` // connection attempts per second, 0 = unlimited
	ConnectBurst      int                  `yaml:"connect_burst"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
	Pool              PoolConfig           `yaml:"pool"`
}

// CircuitBreakerConfig holds circuit breaker settings for stream connects.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// AuthConfig selects where the bearer credential comes from. Sources are
// tried in order: Token, TokenEnv, TokenFile.
type AuthConfig struct {
	Token     string `yaml:"token"` // may be "enc:..."
	TokenEnv  string `yaml:"token_env"`
	TokenFile string `yaml:"token_file"`
}

// StoreConfig holds presentation persistence settings.
type StoreConfig struct {
	Type    string        `yaml:"type"` // "http", "sqlite" or "none"
	BaseURL string        `yaml:"base_url"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// LayoutsConfig tunes layout resolution.
type LayoutsConfig struct {
	DefaultGroup     string            `yaml:"default_group"`
	Synonyms         map[string]string `yaml:"synonyms,omitempty"`
	GenericFallbacks []string          `yaml:"generic_fallbacks,omitempty"`
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Addr      string            `yaml:"addr"`
	Auth      GatewayAuthConfig `yaml:"auth"`
	RateLimit float64           `yaml:"rate_limit"` // RPC requests per second per connection
	RateBurst int               `yaml:"rate_burst"`
}

// GatewayAuthConfig holds gateway authentication settings.
type GatewayAuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// DefaultDataDir returns $HOME/.deckstream, or "./data" without a home.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".deckstream")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Stream: StreamConfig{
			BaseURL:           "http://localhost:8000",
			InactivityTimeout: 60 * time.Second,
			ConnTimeout:       30 * time.Second,
			HeaderTimeout:     60 * time.Second,
			ReadBufferSize:    4096,
			MaxLineBytes:      8 << 20,
			ConnectRate:       2,
			ConnectBurst:      4,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Auth: AuthConfig{
			TokenEnv: EnvPrefix + "TOKEN",
		},
		Store: StoreConfig{
			Type:    "none",
			Path:    filepath.Join(DefaultDataDir(), "presentations.db"),
			Timeout: 30 * time.Second,
		},
		Layouts: LayoutsConfig{
			DefaultGroup: "standard",
		},
		Gateway: GatewayConfig{
			Addr:      "127.0.0.1:8787",
			RateLimit: 10,
			RateBurst: 20,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// LoadEnvFiles loads .env files in order; variables already set in the
// environment win, and so do files listed earlier. Missing files are skipped.
func LoadEnvFiles(files ...string) []string {
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	return loaded
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := validatePermissions(path); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(EnvPrefix + "CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps DECKSTREAM_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	str("BASE_URL", &cfg.Stream.BaseURL)
	str("TOKEN_FILE", &cfg.Auth.TokenFile)
	str("STORE_TYPE", &cfg.Store.Type)
	str("STORE_URL", &cfg.Store.BaseURL)
	str("STORE_PATH", &cfg.Store.Path)
	str("LAYOUT_GROUP", &cfg.Layouts.DefaultGroup)
	str("GATEWAY_ADDR", &cfg.Gateway.Addr)
	str("LOGGER_LEVEL", &cfg.Logger.Level)
	str("LOGGER_FORMAT", &cfg.Logger.Format)
	str("LOGGER_OUTPUT", &cfg.Logger.Output)
	str("TRACER_EXPORTER", &cfg.Tracer.Exporter)

	if v := os.Getenv(EnvPrefix + "INACTIVITY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Stream.InactivityTimeout = d
		}
	}
	if v := os.Getenv(EnvPrefix + "CONNECT_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Stream.ConnectRate = f
		}
	}
	if v := os.Getenv(EnvPrefix + "TRACER_ENABLED"); v != "" {
		cfg.Tracer.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "GATEWAY_TOKENS"); v != "" {
		cfg.Gateway.Auth.Type = "static"
		cfg.Gateway.Auth.Tokens = nil
		for i, tok := range splitAndTrim(v, ",") {
			if tok == "" {
				continue
			}
			cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{
				Token: tok,
				Name:  "env-" + strconv.Itoa(i),
			})
		}
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
