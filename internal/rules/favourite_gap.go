package rules

import (
	"fmt"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// FavouriteGap compares the favourite with the second favourite. When the
// favourite is weak and the second is close behind, both are laid at the
// minimum stake. A clear gap lays the favourite alone at the maximum stake.
type FavouriteGap struct{}

func (FavouriteGap) ID() string         { return "favourite_gap_hedge" }
func (FavouriteGap) Category() Category { return CategoryHedge }
func (FavouriteGap) Description() string {
	return "Lay a weak favourite, covering the second favourite when the gap is small"
}

func (FavouriteGap) Evaluate(runners []domain.Runner, settings domain.Settings, _ domain.Market) Outcome {
	p := settings.FavouriteGap
	cands := pricedRunners(runners)
	if len(cands) < 2 {
		return NoMatch()
	}
	fav, second := cands[0], cands[1]
	if fav.lay.Price <= p.MinFavouriteOdds {
		return NoMatch()
	}

	gap := second.lay.Price - fav.lay.Price
	if gap < p.MaxGap {
		return Matched(
			Selection{
				Runner:     fav.runner,
				Odds:       fav.lay.Price,
				Stake:      settings.MinStake,
				Confidence: ConfidenceMedium,
				Rationale:  fmt.Sprintf("favourite %.2f with second %.2f only %.2f behind, dual cover", fav.lay.Price, second.lay.Price, gap),
			},
			Selection{
				Runner:     second.runner,
				Odds:       second.lay.Price,
				Stake:      settings.MinStake,
				Confidence: ConfidenceMedium,
				Rationale:  fmt.Sprintf("second favourite %.2f within %.2f of favourite, dual cover", second.lay.Price, p.MaxGap),
			},
		)
	}
	return Matched(Selection{
		Runner:     fav.runner,
		Odds:       fav.lay.Price,
		Stake:      settings.MaxStake,
		Confidence: ConfidenceHigh,
		Rationale:  fmt.Sprintf("favourite %.2f clear of second %.2f by %.2f", fav.lay.Price, second.lay.Price, gap),
	})
}
