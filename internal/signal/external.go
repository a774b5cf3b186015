// Package signal queries the external confidence provider. The provider is
// advisory only: when it is unreachable or misbehaving the caller receives
// ok=false and scoring degrades to a zero external input rather than
// blocking resolution.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tdeu/truthmarket/internal/clock"
	"github.com/tdeu/truthmarket/internal/domain"
)

// Config carries provider connection parameters.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	// CacheTTL bounds how often the same market/outcome pair is re-fetched.
	CacheTTL time.Duration
}

type cached struct {
	value     int64
	fetchedAt time.Time
}

// Client fetches outcome confidence from an HTTP provider, caching each
// market/outcome pair for CacheTTL so tight monitor cycles do not hammer it.
type Client struct {
	cfg    Config
	http   *http.Client
	clk    clock.Clock
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cached
}

// New creates a provider client. A nil return means no provider is
// configured and the caller should pass nil to the monitor.
func New(cfg Config, clk clock.Clock, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		clk:    clk,
		logger: logger.With(slog.String("component", "signal_provider")),
		cache:  make(map[string]cached),
	}
}

// providerResponse is the provider's wire format.
type providerResponse struct {
	Confidence int64 `json:"confidence"`
}

// Confidence returns the provider's 0-100 confidence that the outcome is
// correct for the market. ok is false on any transport, status, or decoding
// failure.
func (c *Client) Confidence(ctx context.Context, marketID string, outcome domain.Outcome) (int64, bool) {
	key := marketID + ":" + outcome.String()
	now := c.clk.Now()

	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && now.Sub(entry.fetchedAt) < c.cfg.CacheTTL {
		c.mu.Unlock()
		return entry.value, true
	}
	c.mu.Unlock()

	value, err := c.fetch(ctx, marketID, outcome)
	if err != nil {
		c.logger.WarnContext(ctx, "external signal unavailable",
			slog.String("market_id", marketID),
			slog.String("outcome", outcome.String()),
			slog.String("error", err.Error()),
		)
		return 0, false
	}

	c.mu.Lock()
	c.cache[key] = cached{value: value, fetchedAt: now}
	c.mu.Unlock()
	return value, true
}

func (c *Client) fetch(ctx context.Context, marketID string, outcome domain.Outcome) (int64, error) {
	endpoint := fmt.Sprintf("%s/v1/markets/%s/confidence?outcome=%s",
		c.cfg.BaseURL, url.PathEscape(marketID), url.QueryEscape(outcome.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("signal: build request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("signal: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("signal: provider returned %d", resp.StatusCode)
	}

	var body providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("signal: decode response: %w", err)
	}
	if body.Confidence < 0 || body.Confidence > 100 {
		return 0, fmt.Errorf("signal: confidence %d out of range", body.Confidence)
	}
	return body.Confidence, nil
}
