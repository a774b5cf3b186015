// Package config defines the top-level configuration for the resolution
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRUTHMARKET_* environment
// variables.
type Config struct {
	Ledger     LedgerConfig     `toml:"ledger"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	Pricing    PricingConfig    `toml:"pricing"`
	Resolution ResolutionConfig `toml:"resolution"`
	Signal     SignalConfig     `toml:"signal"`
	Sync       SyncConfig       `toml:"sync"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// LedgerConfig holds settlement-layer connection parameters. The engine
// talks to the settlement contract over an EVM-compatible JSON-RPC endpoint.
type LedgerConfig struct {
	RPCURL           string   `toml:"rpc_url"`
	ContractAddress  string   `toml:"contract_address"`
	ChainID          int64    `toml:"chain_id"`
	OperatorKey      string   `toml:"operator_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	GasLimit         uint64   `toml:"gas_limit"`
	CallTimeout      duration `toml:"call_timeout"`
	MaxRetries       int      `toml:"max_retries"`
	RetryBaseDelay   duration `toml:"retry_base_delay"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the secondary
// queryable store.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis carries the
// per-market locks and the internal event bus.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PricingConfig holds AMM parameters.
type PricingConfig struct {
	// VirtualLiquidity is added to both share pools. Smaller values produce
	// larger price swings per unit stake.
	VirtualLiquidity int64 `toml:"virtual_liquidity"`
	// PriceSumToleranceBps bounds how far priceYes+priceNo may drift from
	// 10000 before the state synchronizer reports drift.
	PriceSumToleranceBps int64 `toml:"price_sum_tolerance_bps"`
}

// ResolutionConfig holds the dispute and finalization parameters.
type ResolutionConfig struct {
	ScanInterval        duration `toml:"scan_interval"`
	DisputeWindow       duration `toml:"dispute_window"`
	MinDisputeBond      int64    `toml:"min_dispute_bond"`
	BondSlashPercent    int64    `toml:"bond_slash_percent"`
	ConfidenceThreshold int64    `toml:"confidence_threshold"`
	// HardCeiling bounds how long a market may stay pending before it
	// finalizes to the fallback outcome, capping indefinite liability.
	HardCeiling      duration `toml:"hard_ceiling"`
	FallbackOutcome  string   `toml:"fallback_outcome"`
	WeightMarketOdds int64    `toml:"weight_market_odds"`
	WeightEvidence   int64    `toml:"weight_evidence"`
	WeightExternal   int64    `toml:"weight_external"`
	LockTTL          duration `toml:"lock_ttl"`
}

// SignalConfig holds the external confidence-signal provider parameters.
type SignalConfig struct {
	BaseURL         string   `toml:"base_url"`
	APIKey          string   `toml:"api_key"`
	RequestTimeout  duration `toml:"request_timeout"`
	RefreshInterval duration `toml:"refresh_interval"`
}

// SyncConfig holds state-synchronizer parameters.
type SyncConfig struct {
	Interval duration `toml:"interval"`
}

// ArchiveConfig holds S3-compatible object storage parameters for resolved
// market history exports.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Interval       duration `toml:"interval"`
}

// ServerConfig holds the admin/ops HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "168h", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the documented default values.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			RPCURL:         "https://testnet.hashio.io/api",
			ChainID:        296,
			GasLimit:       1_500_000,
			CallTimeout:    duration{30 * time.Second},
			MaxRetries:     4,
			RetryBaseDelay: duration{500 * time.Millisecond},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "truthmarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Pricing: PricingConfig{
			VirtualLiquidity:     1_000_000,
			PriceSumToleranceBps: 2,
		},
		Resolution: ResolutionConfig{
			ScanInterval:        duration{time.Minute},
			DisputeWindow:       duration{168 * time.Hour},
			MinDisputeBond:      100_000_000, // 100 units at 6 decimals
			BondSlashPercent:    50,
			ConfidenceThreshold: 80,
			HardCeiling:         duration{100 * 24 * time.Hour},
			FallbackOutcome:     "refund",
			WeightMarketOdds:    50,
			WeightEvidence:      20,
			WeightExternal:      30,
			LockTTL:             duration{30 * time.Second},
		},
		Signal: SignalConfig{
			RequestTimeout:  duration{10 * time.Second},
			RefreshInterval: duration{15 * time.Minute},
		},
		Sync: SyncConfig{
			Interval: duration{2 * time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Region:         "us-east-1",
			Bucket:         "truthmarket-archive",
			ForcePathStyle: true,
			Interval:       duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"market_finalized", "invariant_violation", "store_repaired", "dispute_resolved"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"sync":    true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validFallbacks enumerates accepted fallback outcomes for the hard ceiling.
var validFallbacks = map[string]bool{
	"refund": true,
	"yes":    true,
	"no":     true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, sync, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	if c.Ledger.RPCURL == "" {
		errs = append(errs, "ledger: rpc_url must not be empty")
	}
	if c.Ledger.ContractAddress == "" {
		errs = append(errs, "ledger: contract_address must not be empty")
	}
	if c.Ledger.ChainID <= 0 {
		errs = append(errs, "ledger: chain_id must be positive")
	}
	if c.Ledger.OperatorKey == "" && c.Ledger.EncryptedKeyPath == "" {
		errs = append(errs, "ledger: either operator_key or encrypted_key_path must be set")
	}
	if c.Ledger.EncryptedKeyPath != "" && c.Ledger.KeyPassword == "" {
		errs = append(errs, "ledger: key_password is required when encrypted_key_path is set")
	}
	if c.Ledger.MaxRetries < 1 {
		errs = append(errs, "ledger: max_retries must be >= 1")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Pricing
	if c.Pricing.VirtualLiquidity <= 0 {
		errs = append(errs, "pricing: virtual_liquidity must be > 0")
	}
	if c.Pricing.PriceSumToleranceBps < 0 {
		errs = append(errs, "pricing: price_sum_tolerance_bps must be >= 0")
	}

	// Resolution
	if c.Resolution.ScanInterval.Duration <= 0 {
		errs = append(errs, "resolution: scan_interval must be > 0")
	}
	if c.Resolution.DisputeWindow.Duration <= 0 {
		errs = append(errs, "resolution: dispute_window must be > 0")
	}
	if c.Resolution.MinDisputeBond <= 0 {
		errs = append(errs, "resolution: min_dispute_bond must be > 0")
	}
	if c.Resolution.BondSlashPercent < 0 || c.Resolution.BondSlashPercent > 100 {
		errs = append(errs, fmt.Sprintf("resolution: bond_slash_percent must be 0-100, got %d", c.Resolution.BondSlashPercent))
	}
	if c.Resolution.ConfidenceThreshold < 1 || c.Resolution.ConfidenceThreshold > 100 {
		errs = append(errs, fmt.Sprintf("resolution: confidence_threshold must be 1-100, got %d", c.Resolution.ConfidenceThreshold))
	}
	if c.Resolution.HardCeiling.Duration <= c.Resolution.DisputeWindow.Duration {
		errs = append(errs, "resolution: hard_ceiling must exceed dispute_window")
	}
	if !validFallbacks[strings.ToLower(c.Resolution.FallbackOutcome)] {
		errs = append(errs, fmt.Sprintf("resolution: fallback_outcome must be refund, yes, or no, got %q", c.Resolution.FallbackOutcome))
	}
	if sum := c.Resolution.WeightMarketOdds + c.Resolution.WeightEvidence + c.Resolution.WeightExternal; sum != 100 {
		errs = append(errs, fmt.Sprintf("resolution: confidence weights must sum to 100, got %d", sum))
	}
	if c.Resolution.LockTTL.Duration <= 0 {
		errs = append(errs, "resolution: lock_ttl must be > 0")
	}

	// Sync
	if c.Sync.Interval.Duration <= 0 {
		errs = append(errs, "sync: interval must be > 0")
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty when enabled")
		}
		if c.Archive.Region == "" {
			errs = append(errs, "archive: region must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
