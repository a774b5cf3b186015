package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MarketStatus is the lifecycle state of a market. The numeric values match
// the settlement-layer encoding and must not be reordered.
type MarketStatus uint8

const (
	StatusSubmitted MarketStatus = iota
	StatusOpen
	StatusPendingResolution
	StatusResolved
	StatusCanceled
)

// String returns the lowercase name used in logs and the secondary store.
func (s MarketStatus) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusOpen:
		return "open"
	case StatusPendingResolution:
		return "pending_resolution"
	case StatusResolved:
		return "resolved"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseMarketStatus converts a store-side status string back to the enum.
func ParseMarketStatus(s string) (MarketStatus, error) {
	switch s {
	case "submitted":
		return StatusSubmitted, nil
	case "open":
		return StatusOpen, nil
	case "pending_resolution":
		return StatusPendingResolution, nil
	case "resolved":
		return StatusResolved, nil
	case "canceled":
		return StatusCanceled, nil
	default:
		return 0, fmt.Errorf("domain: unknown market status %q", s)
	}
}

// Side identifies one of the two outcomes a share can be bought on.
type Side uint8

const (
	SideYes Side = iota
	SideNo
)

// String returns "yes" or "no".
func (s Side) String() string {
	if s == SideYes {
		return "yes"
	}
	return "no"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Market is a binary claim users stake collateral on. It is owned by the
// lifecycle component; the Status field is mutated only through defined
// transitions.
type Market struct {
	ID              string
	Question        string
	Creator         string
	CollateralToken string
	FeeRateBps      int64
	Status          MarketStatus
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the market's trading window has ended at now.
func (m Market) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// MarketID derives the content-addressed market identifier from the claim
// text and expiration time. Two markets with the same question and end time
// are the same market.
func MarketID(question string, expiresAt time.Time) string {
	h := sha256.Sum256([]byte(question + "|" + expiresAt.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(h[:])
}

// ShareReserves is the per-market AMM state: outstanding shares on each side
// and the collateral backing them. Reserve must always equal cumulative
// collateral paid in minus cumulative collateral paid out; a violation
// freezes the market.
type ShareReserves struct {
	MarketID  string
	YesShares int64
	NoShares  int64
	Reserve   int64
}

// Outstanding returns the share count for the given side.
func (r ShareReserves) Outstanding(side Side) int64 {
	if side == SideYes {
		return r.YesShares
	}
	return r.NoShares
}
