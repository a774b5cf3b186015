package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdeu/truthmarket/internal/domain"
)

func TestPriceBps_EmptyPoolIsEven(t *testing.T) {
	curve, err := NewCurve(100)
	require.NoError(t, err)

	r := domain.ShareReserves{MarketID: "m1"}
	assert.Equal(t, int64(5000), curve.PriceBps(r, domain.SideYes))
	assert.Equal(t, int64(5000), curve.PriceBps(r, domain.SideNo))
}

func TestPriceBps_SumWithinOneBasisPoint(t *testing.T) {
	curve, err := NewCurve(1000)
	require.NoError(t, err)

	cases := []domain.ShareReserves{
		{YesShares: 0, NoShares: 0},
		{YesShares: 1, NoShares: 0},
		{YesShares: 500, NoShares: 200},
		{YesShares: 123456, NoShares: 7},
		{YesShares: 1, NoShares: 999999},
	}
	for _, r := range cases {
		sum := curve.PriceBps(r, domain.SideYes) + curve.PriceBps(r, domain.SideNo)
		assert.InDelta(t, 10000, sum, 1, "reserves %+v", r)
	}
}

func TestCost_RoundsUpAndIsMonotonic(t *testing.T) {
	curve, err := NewCurve(100)
	require.NoError(t, err)

	empty := domain.ShareReserves{}
	cost, err := curve.Cost(empty, domain.SideYes, 100)
	require.NoError(t, err)
	// (100+100)*100 / (200+100) = 66.67, rounded up.
	assert.Equal(t, int64(67), cost)

	// Buying into a deeper yes pool costs more for the same size.
	deeper := domain.ShareReserves{YesShares: 100}
	costDeeper, err := curve.Cost(deeper, domain.SideYes, 100)
	require.NoError(t, err)
	assert.Greater(t, costDeeper, cost)

	// Average price rises with order size.
	costDouble, err := curve.Cost(empty, domain.SideYes, 200)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, costDouble, 2*cost)
}

func TestCost_RejectsNonPositiveShares(t *testing.T) {
	curve, err := NewCurve(100)
	require.NoError(t, err)

	_, err = curve.Cost(domain.ShareReserves{}, domain.SideYes, 0)
	assert.Error(t, err)
	_, err = curve.Cost(domain.ShareReserves{}, domain.SideYes, -5)
	assert.Error(t, err)
}

func TestProceeds_RoundTripNeverProfits(t *testing.T) {
	curve, err := NewCurve(100)
	require.NoError(t, err)

	for _, size := range []int64{1, 10, 100, 999} {
		r := domain.ShareReserves{YesShares: 50, NoShares: 80}
		cost, err := curve.Cost(r, domain.SideYes, size)
		require.NoError(t, err)

		r.YesShares += size
		proceeds, err := curve.Proceeds(r, domain.SideYes, size)
		require.NoError(t, err)

		assert.Less(t, proceeds, cost, "size %d", size)
	}
}

func TestProceeds_RejectsOversell(t *testing.T) {
	curve, err := NewCurve(100)
	require.NoError(t, err)

	r := domain.ShareReserves{YesShares: 10}
	_, err = curve.Proceeds(r, domain.SideYes, 11)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestFee_RoundsUp(t *testing.T) {
	assert.Equal(t, int64(2), Fee(67, 200))
	assert.Equal(t, int64(0), Fee(100, 0))
	assert.Equal(t, int64(1), Fee(1, 1))
	assert.Equal(t, int64(10), Fee(1000, 100))
}

func TestRedemptionValue_ProRata(t *testing.T) {
	assert.Equal(t, int64(300), RedemptionValue(1000, 30, 100))
	assert.Equal(t, int64(1000), RedemptionValue(1000, 100, 100))
	assert.Equal(t, int64(0), RedemptionValue(1000, 0, 100))
	assert.Equal(t, int64(0), RedemptionValue(0, 30, 100))

	// Rounds down so the sum of payouts never exceeds the reserve.
	third := RedemptionValue(100, 1, 3)
	assert.Equal(t, int64(33), third)
	assert.LessOrEqual(t, 3*third, int64(100))
}

func TestCheckReserve(t *testing.T) {
	assert.NoError(t, CheckReserve(domain.ShareReserves{Reserve: 0}))
	assert.NoError(t, CheckReserve(domain.ShareReserves{Reserve: 42}))
	assert.Error(t, CheckReserve(domain.ShareReserves{MarketID: "m1", Reserve: -1}))
}

func TestNewCurve_RejectsNonPositiveLiquidity(t *testing.T) {
	_, err := NewCurve(0)
	assert.Error(t, err)
	_, err = NewCurve(-10)
	assert.Error(t, err)
}
