// Package app wires configuration into running components and dispatches the
// selected run mode.
package app

import (
	"context"
	"log/slog"

	"github.com/tdeu/truthmarket/internal/blob/s3"
	cacheredis "github.com/tdeu/truthmarket/internal/cache/redis"
	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/confidence"
	"github.com/tdeu/truthmarket/internal/config"
	"github.com/tdeu/truthmarket/internal/crypto"
	"github.com/tdeu/truthmarket/internal/dispute"
	"github.com/tdeu/truthmarket/internal/domain"
	"github.com/tdeu/truthmarket/internal/ledger"
	"github.com/tdeu/truthmarket/internal/lifecycle"
	"github.com/tdeu/truthmarket/internal/monitor"
	"github.com/tdeu/truthmarket/internal/notify"
	"github.com/tdeu/truthmarket/internal/pricing"
	"github.com/tdeu/truthmarket/internal/server"
	"github.com/tdeu/truthmarket/internal/signal"
	"github.com/tdeu/truthmarket/internal/store/postgres"
	"github.com/tdeu/truthmarket/internal/syncer"
)

// Dependencies is the fully wired component graph.
type Dependencies struct {
	Config *config.Config
	Clock  clock.Clock

	Ledger      *ledger.EVMClient
	Postgres    *postgres.Client
	Redis       *cacheredis.Client
	Markets     domain.MarketStore
	Resolutions domain.ResolutionStore
	Disputes    domain.DisputeStore
	Positions   domain.PositionStore
	Audit       domain.AuditStore
	Locks       domain.LockManager
	Bus         domain.EventBus

	Notifier  *notify.Notifier
	Engine    *pricing.Engine
	Lifecycle *lifecycle.Service
	DisputeS  *dispute.Service
	Signal    *signal.Client
	Monitor   *monitor.Monitor
	Syncer    *syncer.Syncer
	Archiver  *s3.Archiver
	Server    *server.Server

	logger *slog.Logger
}

// Wire constructs every component from configuration. It fails fast: any
// unreachable backend aborts startup rather than starting degraded.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Clock: clock.Real{}, logger: logger}

	key, err := crypto.LoadOperatorKey(crypto.KeySource{
		RawKey:        cfg.Ledger.OperatorKey,
		EncryptedPath: cfg.Ledger.EncryptedKeyPath,
		Password:      cfg.Ledger.KeyPassword,
	})
	if err != nil {
		return nil, err
	}

	deps.Ledger, err = ledger.DialEVM(ctx, ledger.EVMConfig{
		RPCURL:          cfg.Ledger.RPCURL,
		ContractAddress: cfg.Ledger.ContractAddress,
		ChainID:         cfg.Ledger.ChainID,
		GasLimit:        cfg.Ledger.GasLimit,
		CallTimeout:     cfg.Ledger.CallTimeout.Duration,
	}, key, logger)
	if err != nil {
		return nil, err
	}

	deps.Postgres, err = postgres.NewClient(ctx, postgres.Config{
		DSN:          cfg.Database.DSN,
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		Database:     cfg.Database.Database,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		SSLMode:      cfg.Database.SSLMode,
		PoolMaxConns: cfg.Database.PoolMaxConns,
		PoolMinConns: cfg.Database.PoolMinConns,
	}, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if cfg.Database.RunMigrations {
		if err := deps.Postgres.Migrate(ctx); err != nil {
			deps.Close()
			return nil, err
		}
	}

	pool := deps.Postgres.Pool()
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Resolutions = postgres.NewResolutionStore(pool)
	deps.Disputes = postgres.NewDisputeStore(pool)
	deps.Positions = postgres.NewPositionStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	deps.Redis, err = cacheredis.NewClient(ctx, cacheredis.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	}, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Locks = cacheredis.NewLockManager(deps.Redis, logger)
	deps.Bus = cacheredis.NewEventBus(deps.Redis, logger)

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	curve, err := pricing.NewCurve(cfg.Pricing.VirtualLiquidity)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Engine = pricing.NewEngine(curve, deps.Ledger, deps.Markets, deps.Positions, deps.Audit, deps.Notifier, deps.Clock, logger)
	deps.Lifecycle = lifecycle.NewService(deps.Ledger, deps.Markets, deps.Audit, deps.Clock, logger)
	deps.DisputeS = dispute.NewService(dispute.Config{
		MinBond:      cfg.Resolution.MinDisputeBond,
		SlashPercent: cfg.Resolution.BondSlashPercent,
	}, deps.Ledger, deps.Disputes, deps.Resolutions, deps.Audit, deps.Clock, deps.Notifier, logger)

	deps.Signal = signal.New(signal.Config{
		BaseURL:        cfg.Signal.BaseURL,
		APIKey:         cfg.Signal.APIKey,
		RequestTimeout: cfg.Signal.RequestTimeout.Duration,
		CacheTTL:       cfg.Signal.RefreshInterval.Duration,
	}, deps.Clock, logger)

	weights := confidence.Weights{
		MarketOdds: cfg.Resolution.WeightMarketOdds,
		Evidence:   cfg.Resolution.WeightEvidence,
		External:   cfg.Resolution.WeightExternal,
	}
	if err := weights.Validate(); err != nil {
		deps.Close()
		return nil, err
	}
	fallback, err := domain.ParseOutcome(cfg.Resolution.FallbackOutcome)
	if err != nil {
		deps.Close()
		return nil, err
	}

	var signalProvider monitor.SignalProvider
	if deps.Signal != nil {
		signalProvider = deps.Signal
	}
	deps.Monitor = monitor.New(monitor.Config{
		ScanInterval:        cfg.Resolution.ScanInterval.Duration,
		DisputeWindow:       cfg.Resolution.DisputeWindow.Duration,
		ConfidenceThreshold: cfg.Resolution.ConfidenceThreshold,
		HardCeiling:         cfg.Resolution.HardCeiling.Duration,
		Fallback:            fallback,
		Weights:             weights,
		LockTTL:             cfg.Resolution.LockTTL.Duration,
		Retry: ledger.RetryPolicy{
			MaxAttempts: cfg.Ledger.MaxRetries,
			BaseDelay:   cfg.Ledger.RetryBaseDelay.Duration,
		},
	}, deps.Ledger, curve, deps.Markets, deps.Resolutions, deps.Disputes, deps.Audit,
		deps.Locks, deps.Bus, signalProvider, deps.Notifier, deps.Clock, logger)

	deps.Syncer = syncer.New(syncer.Config{
		Interval:             cfg.Sync.Interval.Duration,
		PriceSumToleranceBps: cfg.Pricing.PriceSumToleranceBps,
		DisputeWindow:        cfg.Resolution.DisputeWindow.Duration,
	}, deps.Ledger, curve, deps.Markets, deps.Resolutions, deps.Disputes, deps.Positions,
		deps.Audit, deps.Bus, deps.Notifier, deps.Clock, logger)

	if cfg.Archive.Enabled {
		blob, err := s3.NewClient(ctx, s3.Config{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		}, logger)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Archiver = s3.NewArchiver(blob, deps.Markets, deps.Resolutions, deps.Disputes,
			deps.Audit, cfg.Archive.Interval.Duration, deps.Clock, logger)
	}

	if cfg.Server.Enabled {
		deps.Server = server.New(server.Config{
			Port:        cfg.Server.Port,
			APIKey:      cfg.Server.APIKey,
			CORSOrigins: cfg.Server.CORSOrigins,
		}, deps.Engine, deps.Lifecycle, deps.DisputeS, deps.Monitor, deps.Syncer,
			deps.Ledger, deps.Markets, deps.Resolutions, deps.Disputes, deps.Audit, logger)
	}

	logger.InfoContext(ctx, "dependencies wired",
		slog.String("mode", cfg.Mode),
		slog.Bool("archive", cfg.Archive.Enabled),
		slog.Bool("server", cfg.Server.Enabled),
	)
	return deps, nil
}

// Close releases external connections in reverse wiring order. Safe to call
// on a partially wired graph.
func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.logger.Warn("redis close failed", slog.String("error", err.Error()))
		}
	}
	if d.Postgres != nil {
		d.Postgres.Close()
	}
	if d.Ledger != nil {
		d.Ledger.Close()
	}
}
