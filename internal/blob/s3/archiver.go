package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/domain"
)

// Archiver periodically exports resolved markets, their resolution records
// and disputes, and the trailing audit log as JSONL objects.
type Archiver struct {
	writer      domain.BlobWriter
	markets     domain.MarketStore
	resolutions domain.ResolutionStore
	disputes    domain.DisputeStore
	audit       domain.AuditStore
	interval    time.Duration
	clk         clock.Clock
	logger      *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	markets domain.MarketStore,
	resolutions domain.ResolutionStore,
	disputes domain.DisputeStore,
	audit domain.AuditStore,
	interval time.Duration,
	clk clock.Clock,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:      writer,
		markets:     markets,
		resolutions: resolutions,
		disputes:    disputes,
		audit:       audit,
		interval:    interval,
		clk:         clk,
		logger:      logger.With(slog.String("component", "archiver")),
	}
}

// Run exports on the configured interval until ctx is canceled.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "archiver started", slog.Duration("interval", a.interval))

	ticks, stop := a.clk.Tick(a.interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "archiver stopped")
			return ctx.Err()
		case <-ticks:
			if err := a.Export(ctx); err != nil {
				a.logger.WarnContext(ctx, "archive export failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// archivedMarket is one JSONL line of the resolution export.
type archivedMarket struct {
	Market     domain.Market           `json:"market"`
	Resolution domain.ResolutionRecord `json:"resolution"`
	Disputes   []domain.Dispute        `json:"disputes,omitempty"`
}

// Export writes one snapshot of resolved market history and the audit trail.
// Object keys are date-partitioned so repeated exports of the same day
// overwrite rather than accumulate.
func (a *Archiver) Export(ctx context.Context) error {
	now := a.clk.Now()
	prefix := fmt.Sprintf("exports/%s", now.Format("2006/01/02"))

	if err := a.exportResolved(ctx, prefix); err != nil {
		return err
	}
	return a.exportAudit(ctx, prefix, now)
}

func (a *Archiver) exportResolved(ctx context.Context, prefix string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0

	for offset := 0; ; offset += 200 {
		page, err := a.markets.ListByStatus(ctx, domain.StatusResolved, domain.ListOpts{Limit: 200, Offset: offset})
		if err != nil {
			return fmt.Errorf("list resolved markets: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, market := range page {
			entry := archivedMarket{Market: market}
			if rec, err := a.resolutions.GetByMarket(ctx, market.ID); err == nil {
				entry.Resolution = rec
			}
			if disputes, err := a.disputes.ListByMarket(ctx, market.ID); err == nil {
				entry.Disputes = disputes
			}
			if err := enc.Encode(entry); err != nil {
				return fmt.Errorf("encode market %s: %w", market.ID, err)
			}
			count++
		}
	}
	if count == 0 {
		return nil
	}

	key := prefix + "/resolved_markets.jsonl"
	if err := a.writer.Put(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "resolved markets archived",
		slog.String("key", key),
		slog.Int("markets", count),
	)
	return nil
}

func (a *Archiver) exportAudit(ctx context.Context, prefix string, cutoff time.Time) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0

	for offset := 0; ; offset += 1000 {
		page, err := a.audit.ListBefore(ctx, cutoff, domain.ListOpts{Limit: 1000, Offset: offset})
		if err != nil {
			return fmt.Errorf("list audit entries: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, entry := range page {
			if err := enc.Encode(entry); err != nil {
				return fmt.Errorf("encode audit entry %d: %w", entry.ID, err)
			}
			count++
		}
	}
	if count == 0 {
		return nil
	}

	key := prefix + "/audit_log.jsonl"
	if err := a.writer.Put(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "audit trail archived",
		slog.String("key", key),
		slog.Int("entries", count),
	)
	return nil
}
