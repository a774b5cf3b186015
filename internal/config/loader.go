package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRUTHMARKET_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRUTHMARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.RPCURL, "TRUTHMARKET_LEDGER_RPC_URL")
	setStr(&cfg.Ledger.ContractAddress, "TRUTHMARKET_LEDGER_CONTRACT_ADDRESS")
	setInt64(&cfg.Ledger.ChainID, "TRUTHMARKET_LEDGER_CHAIN_ID")
	setStr(&cfg.Ledger.OperatorKey, "TRUTHMARKET_LEDGER_OPERATOR_KEY")
	setStr(&cfg.Ledger.EncryptedKeyPath, "TRUTHMARKET_LEDGER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Ledger.KeyPassword, "TRUTHMARKET_LEDGER_KEY_PASSWORD")
	setUint64(&cfg.Ledger.GasLimit, "TRUTHMARKET_LEDGER_GAS_LIMIT")
	setDuration(&cfg.Ledger.CallTimeout, "TRUTHMARKET_LEDGER_CALL_TIMEOUT")
	setInt(&cfg.Ledger.MaxRetries, "TRUTHMARKET_LEDGER_MAX_RETRIES")
	setDuration(&cfg.Ledger.RetryBaseDelay, "TRUTHMARKET_LEDGER_RETRY_BASE_DELAY")

	// ── Database ──
	setStr(&cfg.Database.DSN, "TRUTHMARKET_DATABASE_DSN")
	setStr(&cfg.Database.Host, "TRUTHMARKET_DATABASE_HOST")
	setInt(&cfg.Database.Port, "TRUTHMARKET_DATABASE_PORT")
	setStr(&cfg.Database.Database, "TRUTHMARKET_DATABASE_NAME")
	setStr(&cfg.Database.User, "TRUTHMARKET_DATABASE_USER")
	setStr(&cfg.Database.Password, "TRUTHMARKET_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "TRUTHMARKET_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "TRUTHMARKET_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "TRUTHMARKET_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "TRUTHMARKET_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRUTHMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRUTHMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRUTHMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRUTHMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRUTHMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRUTHMARKET_REDIS_TLS_ENABLED")

	// ── Pricing ──
	setInt64(&cfg.Pricing.VirtualLiquidity, "TRUTHMARKET_PRICING_VIRTUAL_LIQUIDITY")
	setInt64(&cfg.Pricing.PriceSumToleranceBps, "TRUTHMARKET_PRICING_PRICE_SUM_TOLERANCE_BPS")

	// ── Resolution ──
	setDuration(&cfg.Resolution.ScanInterval, "TRUTHMARKET_RESOLUTION_SCAN_INTERVAL")
	setDuration(&cfg.Resolution.DisputeWindow, "TRUTHMARKET_RESOLUTION_DISPUTE_WINDOW")
	setInt64(&cfg.Resolution.MinDisputeBond, "TRUTHMARKET_RESOLUTION_MIN_DISPUTE_BOND")
	setInt64(&cfg.Resolution.BondSlashPercent, "TRUTHMARKET_RESOLUTION_BOND_SLASH_PERCENT")
	setInt64(&cfg.Resolution.ConfidenceThreshold, "TRUTHMARKET_RESOLUTION_CONFIDENCE_THRESHOLD")
	setDuration(&cfg.Resolution.HardCeiling, "TRUTHMARKET_RESOLUTION_HARD_CEILING")
	setStr(&cfg.Resolution.FallbackOutcome, "TRUTHMARKET_RESOLUTION_FALLBACK_OUTCOME")
	setInt64(&cfg.Resolution.WeightMarketOdds, "TRUTHMARKET_RESOLUTION_WEIGHT_MARKET_ODDS")
	setInt64(&cfg.Resolution.WeightEvidence, "TRUTHMARKET_RESOLUTION_WEIGHT_EVIDENCE")
	setInt64(&cfg.Resolution.WeightExternal, "TRUTHMARKET_RESOLUTION_WEIGHT_EXTERNAL")
	setDuration(&cfg.Resolution.LockTTL, "TRUTHMARKET_RESOLUTION_LOCK_TTL")

	// ── Signal ──
	setStr(&cfg.Signal.BaseURL, "TRUTHMARKET_SIGNAL_BASE_URL")
	setStr(&cfg.Signal.APIKey, "TRUTHMARKET_SIGNAL_API_KEY")
	setDuration(&cfg.Signal.RequestTimeout, "TRUTHMARKET_SIGNAL_REQUEST_TIMEOUT")
	setDuration(&cfg.Signal.RefreshInterval, "TRUTHMARKET_SIGNAL_REFRESH_INTERVAL")

	// ── Sync ──
	setDuration(&cfg.Sync.Interval, "TRUTHMARKET_SYNC_INTERVAL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRUTHMARKET_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "TRUTHMARKET_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "TRUTHMARKET_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "TRUTHMARKET_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "TRUTHMARKET_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "TRUTHMARKET_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.ForcePathStyle, "TRUTHMARKET_ARCHIVE_FORCE_PATH_STYLE")
	setDuration(&cfg.Archive.Interval, "TRUTHMARKET_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRUTHMARKET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRUTHMARKET_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TRUTHMARKET_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "TRUTHMARKET_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRUTHMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRUTHMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRUTHMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRUTHMARKET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRUTHMARKET_MODE")
	setStr(&cfg.LogLevel, "TRUTHMARKET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
