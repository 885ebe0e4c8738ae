package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/laybot/internal/domain"
	"github.com/alanyoungcy/laybot/internal/staking"
)

// OddsBand lays one runner whose best lay price sits inside a configured
// band. Prices in the sweet sub-band propose the maximum stake; the rest
// propose the minimum. The rule applies its own liability cap before the
// engine's global caps.
type OddsBand struct{}

func (OddsBand) ID() string         { return "odds_band_lay" }
func (OddsBand) Category() Category { return CategoryLay }
func (OddsBand) Description() string {
	return "Lay the best-ranked runner priced inside the odds band"
}

type bandCandidate struct {
	priced
	sweet      bool
	confidence Confidence
	stake      float64
}

func (OddsBand) Evaluate(runners []domain.Runner, settings domain.Settings, market domain.Market) Outcome {
	p := settings.OddsBand
	prime := false
	if tts := market.TimeToStart(); tts >= 0 && tts <= time.Duration(p.PrimeWindowMinutes)*time.Minute {
		prime = true
	}
	ruleCap := decimal.NewFromFloat(p.MaxLiability)

	var cands []bandCandidate
	for _, c := range pricedRunners(runners) {
		price := c.lay.Price
		if price < p.MinOdds || price >= p.MaxOdds {
			continue
		}
		sweet := price >= p.SweetMin && price < p.SweetMax
		stake := settings.MinStake
		if sweet {
			stake = settings.MaxStake
		}

		odds := decimal.NewFromFloat(price)
		if staking.Liability(decimal.NewFromFloat(stake), odds).GreaterThan(ruleCap) {
			capped := staking.MaxWholeStake(ruleCap, odds)
			if capped.LessThan(decimal.NewFromInt(1)) {
				continue
			}
			stake = capped.InexactFloat64()
		}

		cands = append(cands, bandCandidate{
			priced:     c,
			sweet:      sweet,
			confidence: confidenceFor(sweet, prime),
			stake:      stake,
		})
	}
	if len(cands) == 0 {
		return NoMatch()
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.sweet != b.sweet {
			return a.sweet
		}
		if a.lay.Price != b.lay.Price {
			return a.lay.Price < b.lay.Price
		}
		return a.runner.SelectionID < b.runner.SelectionID
	})

	best := cands[0]
	return Matched(Selection{
		Runner:     best.runner,
		Odds:       best.lay.Price,
		Stake:      best.stake,
		Confidence: best.confidence,
		Rationale: fmt.Sprintf("lay %.2f in band [%.2f, %.2f), sweet=%t, %s confidence",
			best.lay.Price, p.MinOdds, p.MaxOdds, best.sweet, best.confidence),
	})
}

func confidenceFor(sweet, prime bool) Confidence {
	switch {
	case sweet && prime:
		return ConfidenceHigh
	case sweet || prime:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
