package rules

import (
	"fmt"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// GradeSkip vetoes elite races with an odds-on favourite. Laying the field
// against a short favourite in a top race has poor expectation.
type GradeSkip struct{}

func (GradeSkip) ID() string         { return "grade_risk_skip" }
func (GradeSkip) Category() Category { return CategoryRisk }
func (GradeSkip) Description() string {
	return "Skip elite-grade races where the favourite is odds-on"
}

func (GradeSkip) Evaluate(runners []domain.Runner, settings domain.Settings, market domain.Market) Outcome {
	if market.Grade != domain.GradeElite {
		return NoMatch()
	}
	cands := pricedRunners(runners)
	if len(cands) == 0 {
		return NoMatch()
	}
	fav := cands[0]
	if fav.lay.Price >= settings.GradeSkip.OddsOnBelow {
		return NoMatch()
	}
	return Skip(fmt.Sprintf("elite race with favourite %s at %.2f (below %.2f)",
		fav.runner.Name, fav.lay.Price, settings.GradeSkip.OddsOnBelow))
}
