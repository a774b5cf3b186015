package domain

import "time"

// Position is an account's share holdings in a single market. Positions are
// transferable independently of redemption rights; redemption zeroes the
// holdings so a second redeem call pays nothing.
type Position struct {
	MarketID  string
	Account   string
	YesShares int64
	NoShares  int64
	UpdatedAt time.Time
}

// Shares returns the holdings on the given side.
func (p Position) Shares(side Side) int64 {
	if side == SideYes {
		return p.YesShares
	}
	return p.NoShares
}

// Empty reports whether the position holds no shares on either side.
func (p Position) Empty() bool {
	return p.YesShares == 0 && p.NoShares == 0
}
