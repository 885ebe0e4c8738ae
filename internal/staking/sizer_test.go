package staking

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/laybot/internal/domain"
)

func testSettings() domain.Settings {
	s := domain.DefaultSettings()
	s.MinStake = 1
	s.MaxStake = 2
	s.TotalLimit = 10
	s.PerBetLiabilityCap = 20
	s.DailyLiabilityCap = 50
	return s
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestSize_PlacesClampedStake(t *testing.T) {
	d := Size(2, 3.80, testSettings(), Budget{})
	require.Equal(t, Place, d.Verdict)
	assert.True(t, d.Stake.Equal(dec(2)), "stake %s", d.Stake)
	assert.True(t, d.Liability.Equal(dec(5.6)), "liability %s", d.Liability)
}

func TestSize_ClampsToMinAndMax(t *testing.T) {
	s := testSettings()

	d := Size(0.2, 3, s, Budget{})
	require.Equal(t, Place, d.Verdict)
	assert.True(t, d.Stake.Equal(dec(1)))

	d = Size(50, 3, s, Budget{})
	require.Equal(t, Place, d.Verdict)
	assert.True(t, d.Stake.Equal(dec(2)))
}

func TestSize_BudgetBoundAtFloorIsExhausted(t *testing.T) {
	s := testSettings()
	s.TotalLimit = 1

	d := Size(2, 3.80, s, Budget{})
	assert.Equal(t, Exhausted, d.Verdict)
	assert.NotEmpty(t, d.Reason)

	// Mid-run: the last unit of budget equals the floor.
	s.TotalLimit = 3
	d = Size(2, 3.80, s, Budget{TotalStaked: dec(2)})
	assert.Equal(t, Exhausted, d.Verdict)
	assert.True(t, d.Stake.Equal(dec(1)), "stake %s", d.Stake)
}

func TestSize_BudgetBoundAboveFloorPlacesPartial(t *testing.T) {
	s := testSettings()
	s.TotalLimit = 10

	d := Size(2, 3, s, Budget{TotalStaked: dec(8.5)})
	require.Equal(t, Place, d.Verdict)
	assert.True(t, d.Stake.Equal(dec(1.5)), "stake %s", d.Stake)
}

func TestSize_NoBudgetLeft(t *testing.T) {
	d := Size(2, 3, testSettings(), Budget{TotalStaked: dec(10)})
	assert.Equal(t, Exhausted, d.Verdict)
}

func TestSize_PerBetCapReducesToWholeUnits(t *testing.T) {
	s := testSettings()
	s.MaxStake = 10
	s.TotalLimit = 100
	s.PerBetLiabilityCap = 15

	// 10 @ 4.0 is 30 liability; 15/3 = 5.
	d := Size(10, 4.0, s, Budget{})
	require.Equal(t, Place, d.Verdict)
	assert.True(t, d.Stake.Equal(dec(5)), "stake %s", d.Stake)
	assert.True(t, d.Liability.LessThanOrEqual(dec(15)))
}

func TestSize_PerBetCapDiscardsWhenBelowOneUnit(t *testing.T) {
	s := testSettings()
	s.PerBetLiabilityCap = 5

	// Liability of one unit at 10.0 is 9, over the cap.
	d := Size(2, 10.0, s, Budget{})
	assert.Equal(t, Discard, d.Verdict)
}

func TestSize_DailyCapSkips(t *testing.T) {
	s := testSettings()
	s.DailyLiabilityCap = 10

	d := Size(2, 3.80, s, Budget{DailyLiability: dec(6)})
	assert.Equal(t, SkipDaily, d.Verdict)

	d = Size(2, 3.80, s, Budget{DailyLiability: dec(4.4)})
	assert.Equal(t, Place, d.Verdict, "5.6 + 4.4 sits exactly on the cap")
}

func TestSize_NeverExceedsBudget(t *testing.T) {
	s := testSettings()
	s.TotalLimit = 7.35
	staked := decimal.Zero
	for i := 0; i < 20; i++ {
		d := Size(2, 2.5, s, Budget{TotalStaked: staked})
		if d.Verdict != Place {
			break
		}
		staked = staked.Add(d.Stake)
		require.True(t, staked.LessThanOrEqual(dec(s.TotalLimit)), "staked %s", staked)
	}
	assert.True(t, staked.Equal(dec(7.35)), "staked %s", staked)
}

func TestMaxWholeStake(t *testing.T) {
	assert.True(t, MaxWholeStake(dec(15), dec(3.8)).Equal(dec(5)))
	assert.True(t, MaxWholeStake(dec(15), dec(1)).IsZero())
}
