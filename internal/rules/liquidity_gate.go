package rules

import (
	"fmt"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// LiquidityGate skips markets where no runner offers enough lay size to
// absorb a minimum bet several times over.
type LiquidityGate struct{}

func (LiquidityGate) ID() string         { return "liquidity_gate" }
func (LiquidityGate) Category() Category { return CategoryRisk }
func (LiquidityGate) Description() string {
	return "Skip thin markets without lay liquidity of min stake x multiplier"
}

func (LiquidityGate) Evaluate(runners []domain.Runner, settings domain.Settings, _ domain.Market) Outcome {
	need := settings.MinStake * settings.Liquidity.Multiplier
	for _, c := range pricedRunners(runners) {
		if c.lay.Size >= need {
			return NoMatch()
		}
	}
	return Skip(fmt.Sprintf("no runner offers %.2f at the best lay price", need))
}
