// Package staking turns a rule's proposed stake into a stake that respects the
// run budget and the liability caps. All money arithmetic is decimal.
package staking

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/laybot/internal/domain"
)

var one = decimal.NewFromInt(1)

// Verdict is what the engine should do with a sized selection.
type Verdict int

const (
	// Place the bet with Decision.Stake.
	Place Verdict = iota
	// Discard the selection; the run continues.
	Discard
	// SkipDaily drops the selection because the daily liability cap would be
	// breached; the run continues.
	SkipDaily
	// Exhausted means the remaining budget cannot fund a bet. The engine
	// must stop.
	Exhausted
)

func (v Verdict) String() string {
	switch v {
	case Place:
		return "place"
	case Discard:
		return "discard"
	case SkipDaily:
		return "skip_daily"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Budget is the part of the session the sizer needs.
type Budget struct {
	TotalStaked    decimal.Decimal
	DailyLiability decimal.Decimal
}

// Decision is the sizer's output.
type Decision struct {
	Verdict   Verdict
	Stake     decimal.Decimal
	Liability decimal.Decimal
	Reason    string
}

// Liability is the amount lost by a lay bet if the selection wins.
func Liability(stake, odds decimal.Decimal) decimal.Decimal {
	return stake.Mul(odds.Sub(one))
}

// MaxWholeStake returns the largest whole-unit stake whose liability at odds
// stays within limit.
func MaxWholeStake(limit, odds decimal.Decimal) decimal.Decimal {
	if odds.LessThanOrEqual(one) {
		return decimal.Zero
	}
	return limit.Div(odds.Sub(one)).Floor()
}

// Size applies, in order: the [min, max] clamp, the remaining run budget, the
// per-bet liability cap and the daily liability cap.
func Size(proposed, odds float64, s domain.Settings, b Budget) Decision {
	o := decimal.NewFromFloat(odds)
	if o.LessThanOrEqual(one) {
		return Decision{Verdict: Discard, Reason: fmt.Sprintf("odds %.2f cannot be laid", odds)}
	}
	minStake := decimal.NewFromFloat(s.MinStake)
	maxStake := decimal.NewFromFloat(s.MaxStake)

	stake := decimal.NewFromFloat(proposed).Round(2)
	if stake.LessThan(minStake) {
		stake = minStake
	}
	if stake.GreaterThan(maxStake) {
		stake = maxStake
	}
	if !stake.IsPositive() {
		return Decision{Verdict: Discard, Reason: "proposed stake is zero"}
	}

	remaining := decimal.NewFromFloat(s.TotalLimit).Sub(b.TotalStaked)
	if !remaining.IsPositive() {
		return Decision{Verdict: Exhausted, Reason: "total stake limit reached"}
	}
	if stake.GreaterThan(remaining) {
		stake = remaining.Truncate(2)
		// A budget-bound stake must stay strictly above the floor: a budget
		// that only covers exactly MinStake counts as exhausted, so a limit
		// equal to the minimum stake places nothing and ends the run.
		if !stake.IsPositive() || stake.LessThanOrEqual(minStake) {
			return Decision{
				Verdict: Exhausted,
				Stake:   stake,
				Reason: fmt.Sprintf("remaining budget %s cannot fund a bet above the %s minimum stake",
					remaining.StringFixed(2), minStake.StringFixed(2)),
			}
		}
	}

	liability := Liability(stake, o)
	perBetCap := decimal.NewFromFloat(s.PerBetLiabilityCap)
	if liability.GreaterThan(perBetCap) {
		stake = MaxWholeStake(perBetCap, o)
		if stake.LessThan(one) || stake.LessThan(minStake) {
			return Decision{
				Verdict: Discard,
				Reason: fmt.Sprintf("no stake of at least 1 keeps liability within %s at %.2f",
					perBetCap.StringFixed(2), odds),
			}
		}
		liability = Liability(stake, o)
	}

	dailyCap := decimal.NewFromFloat(s.DailyLiabilityCap)
	if b.DailyLiability.Add(liability).GreaterThan(dailyCap) {
		return Decision{
			Verdict:   SkipDaily,
			Stake:     stake,
			Liability: liability,
			Reason: fmt.Sprintf("liability %s would take the day to %s, over the %s cap",
				liability.StringFixed(2), b.DailyLiability.Add(liability).StringFixed(2), dailyCap.StringFixed(2)),
		}
	}

	return Decision{Verdict: Place, Stake: stake, Liability: liability}
}
