// Package rules holds the pure staking rules evaluated by the auto-betting
// engine. A rule reads runners, settings and market metadata and returns an
// Outcome; it never performs I/O and never reads a clock.
package rules

import (
	"github.com/alanyoungcy/laybot/internal/domain"
)

// Category groups rules for display.
type Category string

const (
	CategoryRisk  Category = "risk"
	CategoryLay   Category = "lay"
	CategoryHedge Category = "hedge"
)

// Rule is a single staking rule.
type Rule interface {
	ID() string
	Category() Category
	Description() string
	Evaluate(runners []domain.Runner, settings domain.Settings, market domain.Market) Outcome
}

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	// KindNoMatch lets evaluation continue with the next rule.
	KindNoMatch OutcomeKind = iota
	// KindSkip short-circuits evaluation; the market gets no bets.
	KindSkip
	// KindMatched short-circuits evaluation with selections to bet on.
	KindMatched
)

func (k OutcomeKind) String() string {
	switch k {
	case KindSkip:
		return "skip"
	case KindMatched:
		return "matched"
	default:
		return "no_match"
	}
}

// Confidence ranks candidates inside a rule.
type Confidence int

const (
	ConfidenceLow Confidence = iota + 1
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// Selection is one runner a rule wants to lay.
type Selection struct {
	Runner     domain.Runner
	Odds       float64 // best lay price at evaluation time
	Stake      float64 // proposed stake before sizing
	Confidence Confidence
	Rationale  string
}

// Outcome is the result of evaluating a rule. Exactly one of the variants is
// meaningful, selected by Kind.
type Outcome struct {
	Kind       OutcomeKind
	Reason     string
	Selections []Selection
}

// NoMatch returns the outcome that defers to the next rule.
func NoMatch() Outcome { return Outcome{Kind: KindNoMatch} }

// Skip returns an outcome that vetoes the market.
func Skip(reason string) Outcome { return Outcome{Kind: KindSkip, Reason: reason} }

// Matched returns an outcome with selections. With no selections it is a
// NoMatch.
func Matched(sels ...Selection) Outcome {
	if len(sels) == 0 {
		return NoMatch()
	}
	return Outcome{Kind: KindMatched, Selections: sels}
}
