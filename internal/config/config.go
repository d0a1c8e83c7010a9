// Package config loads process configuration from defaults, an optional
// config file, a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"solana-wallet-tracker/internal/ledger"
	"solana-wallet-tracker/internal/matcher"
	"solana-wallet-tracker/internal/solana"
	"solana-wallet-tracker/internal/transport"
)

// Ledger backends.
const (
	BackendHelius     = "helius"
	BackendPostgres   = "postgres"
	BackendClickhouse = "clickhouse"
)

// DefaultConfigFiles are tried in order when no config file is named.
var DefaultConfigFiles = []string{"config.yaml", "config.yml", "config.json"}

// Config holds all process configuration. It is built once and passed by value.
type Config struct {
	// Ledger
	HeliusAPIKey  string
	HeliusRPCURL  string // overrides the URL derived from HeliusAPIKey
	Backend       string // helius, postgres or clickhouse
	PostgresDSN   string
	ClickHouseDSN string

	// Market data
	DexScreenerURL string
	SolanaRPCURL   string

	// Matching
	Tolerance      float64
	MaxHolderPages int
	HolderPageSize int

	// Transport
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	HTTPTimeout time.Duration

	// Server
	HTTPAddr string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend:        BackendHelius,
		Tolerance:      matcher.DefaultTolerance,
		MaxHolderPages: matcher.DefaultMaxHolderPages,
		HolderPageSize: matcher.DefaultPageSize,
		MaxAttempts:    transport.DefaultMaxAttempts,
		BaseDelay:      transport.DefaultBaseDelay,
		MaxDelay:       transport.DefaultMaxDelay,
		HTTPTimeout:    transport.DefaultTimeout,
		HTTPAddr:       ":8080",
	}
}

// LoadOptions selects the files Load reads.
type LoadOptions struct {
	EnvFile    string // default ".env"; missing file is not an error
	ConfigFile string // default: first of DefaultConfigFiles that exists; a named file must exist
}

// fileConfig mirrors config.yaml / config.json.
type fileConfig struct {
	Tolerances struct {
		TokenAmountPct *float64 `yaml:"token_amount_pct"`
	} `yaml:"tolerances"`
	MaxHolderPages *int   `yaml:"max_holder_pages"`
	HolderPageSize *int   `yaml:"holder_page_size"`
	Backend        string `yaml:"backend"`
	Endpoints      struct {
		DexScreener string `yaml:"dexscreener"`
		SolanaRPC   string `yaml:"solana_rpc"`
		HeliusRPC   string `yaml:"helius_rpc"`
	} `yaml:"endpoints"`
	Retry struct {
		MaxAttempts *int   `yaml:"max_attempts"`
		BaseDelay   string `yaml:"base_delay"`
		MaxDelay    string `yaml:"max_delay"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"retry"`
	HTTPAddr string `yaml:"http_addr"`
}

// Load builds the configuration: defaults, then the config file, then
// environment variables (a .env file fills variables that are not already set).
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", envFile, err)
	}

	path, err := configFilePath(opts.ConfigFile)
	if err != nil {
		return cfg, err
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func configFilePath(named string) (string, error) {
	if named != "" {
		if _, err := os.Stat(named); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return named, nil
	}
	for _, candidate := range DefaultConfigFiles {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// applyFile merges a YAML or JSON config file.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Tolerances.TokenAmountPct != nil {
		c.Tolerance = *fc.Tolerances.TokenAmountPct
	}
	if fc.MaxHolderPages != nil {
		c.MaxHolderPages = *fc.MaxHolderPages
	}
	if fc.HolderPageSize != nil {
		c.HolderPageSize = *fc.HolderPageSize
	}
	if fc.Retry.MaxAttempts != nil {
		c.MaxAttempts = *fc.Retry.MaxAttempts
	}
	setString(&c.Backend, fc.Backend)
	setString(&c.DexScreenerURL, fc.Endpoints.DexScreener)
	setString(&c.SolanaRPCURL, fc.Endpoints.SolanaRPC)
	setString(&c.HeliusRPCURL, fc.Endpoints.HeliusRPC)
	setString(&c.HTTPAddr, fc.HTTPAddr)

	for _, d := range []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{fc.Retry.BaseDelay, &c.BaseDelay, "retry.base_delay"},
		{fc.Retry.MaxDelay, &c.MaxDelay, "retry.max_delay"},
		{fc.Retry.Timeout, &c.HTTPTimeout, "retry.timeout"},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv() error {
	setString(&c.HeliusAPIKey, os.Getenv("HELIUS_API_KEY"))
	setString(&c.HeliusRPCURL, os.Getenv("HELIUS_RPC_URL"))
	setString(&c.Backend, os.Getenv("LEDGER_BACKEND"))
	setString(&c.PostgresDSN, os.Getenv("POSTGRES_DSN"))
	setString(&c.ClickHouseDSN, os.Getenv("CLICKHOUSE_DSN"))
	setString(&c.DexScreenerURL, os.Getenv("DEXSCREENER_URL"))
	setString(&c.SolanaRPCURL, os.Getenv("SOLANA_RPC_URL"))
	setString(&c.HTTPAddr, os.Getenv("HTTP_ADDR"))

	var errs []error
	errs = append(errs,
		envFloat("TOKEN_AMOUNT_TOLERANCE", &c.Tolerance),
		envInt("MAX_HOLDER_PAGES", &c.MaxHolderPages),
		envInt("HOLDER_PAGE_SIZE", &c.HolderPageSize),
		envInt("RETRY_MAX_ATTEMPTS", &c.MaxAttempts),
		envDuration("RETRY_BASE_DELAY", &c.BaseDelay),
		envDuration("RETRY_MAX_DELAY", &c.MaxDelay),
		envDuration("HTTP_TIMEOUT", &c.HTTPTimeout),
	)
	return errors.Join(errs...)
}

// Validate checks the configuration for the selected backend.
func (c Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendHelius:
		if c.HeliusAPIKey == "" && c.HeliusRPCURL == "" {
			errs = append(errs, errors.New("HELIUS_API_KEY is required (free key at https://helius.dev)"))
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres backend"))
		}
	case BackendClickhouse:
		if c.ClickHouseDSN == "" {
			errs = append(errs, errors.New("CLICKHOUSE_DSN is required for the clickhouse backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger backend %q", c.Backend))
	}

	if !(c.Tolerance >= 0 && c.Tolerance < 1) {
		errs = append(errs, fmt.Errorf("tolerance must be in [0, 1), got %v", c.Tolerance))
	}
	if c.MaxHolderPages <= 0 {
		errs = append(errs, fmt.Errorf("max holder pages must be positive, got %d", c.MaxHolderPages))
	}
	if c.HolderPageSize <= 0 || c.HolderPageSize > ledger.MaxPageSize {
		errs = append(errs, fmt.Errorf("holder page size must be in [1, %d], got %d", ledger.MaxPageSize, c.HolderPageSize))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry max attempts must be positive, got %d", c.MaxAttempts))
	}

	return errors.Join(errs...)
}

// MatcherConfig returns the matching parameters.
func (c Config) MatcherConfig() matcher.Config {
	return matcher.Config{
		Tolerance:      c.Tolerance,
		MaxHolderPages: c.MaxHolderPages,
		PageSize:       c.HolderPageSize,
	}
}

// RetryPolicy returns the shared transport retry policy.
func (c Config) RetryPolicy() transport.Policy {
	p := transport.DefaultPolicy()
	p.MaxAttempts = c.MaxAttempts
	p.BaseDelay = c.BaseDelay
	p.MaxDelay = c.MaxDelay
	return p
}

// TransportOptions returns the options every outbound HTTP provider is built with.
func (c Config) TransportOptions(logger *log.Logger) []transport.Option {
	return []transport.Option{
		transport.WithPolicy(c.RetryPolicy()),
		transport.WithTimeout(c.HTTPTimeout),
		transport.WithLogger(logger),
	}
}

// LedgerURL returns the Helius JSON-RPC endpoint.
func (c Config) LedgerURL() string {
	if c.HeliusRPCURL != "" {
		return c.HeliusRPCURL
	}
	return solana.HeliusRPCURL(c.HeliusAPIKey)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

func envFloat(key string, dst *float64) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}
