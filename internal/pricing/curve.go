// Package pricing implements the constant-product bonding curve that prices
// YES/NO shares, and the engine that executes purchases against the
// settlement ledger.
//
// All cost computation is integer arithmetic over collateral base units.
// Rounding is always in the protocol's favor: purchase costs round up, sale
// proceeds and redemptions round down, so repeated round-trips can never
// drain the reserve.
package pricing

import (
	"fmt"
	"math/big"

	"github.com/tdeu/truthmarket/internal/domain"
)

// Curve prices shares from pooled reserves. VirtualLiquidity is added to both
// share counts to prevent divide-by-zero and bound price sensitivity near
// zero liquidity; it is configuration, never a literal, because under-tuning
// makes price movement imperceptible for realistic stake sizes.
type Curve struct {
	VirtualLiquidity int64
}

// NewCurve validates the virtual liquidity constant.
func NewCurve(virtualLiquidity int64) (Curve, error) {
	if virtualLiquidity <= 0 {
		return Curve{}, fmt.Errorf("pricing: virtual liquidity must be positive, got %d", virtualLiquidity)
	}
	return Curve{VirtualLiquidity: virtualLiquidity}, nil
}

// pool returns (side pool, total pool) as big integers, with virtual
// liquidity applied.
func (c Curve) pool(r domain.ShareReserves, side domain.Side) (*big.Int, *big.Int) {
	v := big.NewInt(c.VirtualLiquidity)
	q := new(big.Int).Add(big.NewInt(r.Outstanding(side)), v)
	total := new(big.Int).Add(big.NewInt(r.YesShares), big.NewInt(r.NoShares))
	total.Add(total, v)
	total.Add(total, v)
	return q, total
}

// PriceBps returns the marginal price of one share on the given side in
// basis points of one collateral unit: (q+V) * 10000 / (yes+no+2V).
// By construction PriceBps(yes) + PriceBps(no) differs from 10000 by at most
// one basis point of rounding.
func (c Curve) PriceBps(r domain.ShareReserves, side domain.Side) int64 {
	q, total := c.pool(r, side)
	num := new(big.Int).Mul(q, big.NewInt(10000))
	return new(big.Int).Quo(num, total).Int64()
}

// OddsPercent returns the crowd's revealed probability of the given side on a
// 0-100 scale, used as the market-odds input to confidence scoring.
func (c Curve) OddsPercent(r domain.ShareReserves, side domain.Side) int64 {
	q, total := c.pool(r, side)
	num := new(big.Int).Mul(q, big.NewInt(100))
	return new(big.Int).Quo(num, total).Int64()
}

// Cost returns the collateral required to buy shares on the given side.
//
// The marginal price while buying rises from (q+V)/(T) to (q+V+s)/(T+s);
// the charge is s times the post-trade price, rounded up. That upper bound
// on the true path integral keeps every rounding error on the protocol side
// and makes the cost strictly monotonic in both s and q.
func (c Curve) Cost(r domain.ShareReserves, side domain.Side, shares int64) (int64, error) {
	if shares <= 0 {
		return 0, fmt.Errorf("pricing: share amount must be positive, got %d", shares)
	}
	q, total := c.pool(r, side)
	s := big.NewInt(shares)

	num := new(big.Int).Add(q, s)
	num.Mul(num, s)
	den := new(big.Int).Add(total, s)

	cost := new(big.Int)
	rem := new(big.Int)
	cost.QuoRem(num, den, rem)
	if rem.Sign() != 0 {
		cost.Add(cost, big.NewInt(1))
	}
	if !cost.IsInt64() {
		return 0, fmt.Errorf("pricing: cost overflows int64 for %d shares", shares)
	}
	return cost.Int64(), nil
}

// Proceeds returns the collateral paid out for selling shares back to the
// pool, rounded down. The post-trade price bounds the integral from below,
// so a buy of k shares immediately followed by a sell of k shares always
// returns strictly less than the purchase cost.
func (c Curve) Proceeds(r domain.ShareReserves, side domain.Side, shares int64) (int64, error) {
	if shares <= 0 {
		return 0, fmt.Errorf("pricing: share amount must be positive, got %d", shares)
	}
	if shares > r.Outstanding(side) {
		return 0, domain.ErrInsufficientShares
	}
	q, total := c.pool(r, side)
	s := big.NewInt(shares)

	num := new(big.Int).Sub(q, s)
	num.Mul(num, s)
	den := new(big.Int).Sub(total, s)

	proceeds := new(big.Int).Quo(num, den)
	if !proceeds.IsInt64() {
		return 0, fmt.Errorf("pricing: proceeds overflow int64 for %d shares", shares)
	}
	return proceeds.Int64(), nil
}

// Fee returns the protocol fee on a purchase cost, rounded up.
func Fee(cost, feeRateBps int64) int64 {
	num := new(big.Int).Mul(big.NewInt(cost), big.NewInt(feeRateBps))
	fee := new(big.Int)
	rem := new(big.Int)
	fee.QuoRem(num, big.NewInt(10000), rem)
	if rem.Sign() != 0 {
		fee.Add(fee, big.NewInt(1))
	}
	return fee.Int64()
}

// RedemptionValue returns the pro-rata payout for holding shares of the
// winning side: reserve * held / outstanding, rounded down. Funding
// redemptions pro rata from the reserve preserves the invariant that the
// pool never pays out more collateral than it holds.
func RedemptionValue(reserve, held, outstanding int64) int64 {
	if held <= 0 || outstanding <= 0 || reserve <= 0 {
		return 0
	}
	num := new(big.Int).Mul(big.NewInt(reserve), big.NewInt(held))
	return new(big.Int).Quo(num, big.NewInt(outstanding)).Int64()
}

// CheckReserve validates the reserve invariant. A negative reserve is a
// fatal corruption: the caller must freeze the market and alert rather than
// attempt repair.
func CheckReserve(r domain.ShareReserves) error {
	if r.Reserve < 0 {
		return fmt.Errorf("pricing: market %s reserve is negative (%d)", r.MarketID, r.Reserve)
	}
	return nil
}
