package domain

import (
	"fmt"
	"strings"
)

// OddsBandParams tunes the odds-band lay rule.
type OddsBandParams struct {
	MinOdds      float64 `json:"min_odds" toml:"min_odds"`
	MaxOdds      float64 `json:"max_odds" toml:"max_odds"`
	SweetMin     float64 `json:"sweet_min" toml:"sweet_min"`
	SweetMax     float64 `json:"sweet_max" toml:"sweet_max"`
	MaxLiability float64 `json:"max_liability" toml:"max_liability"`
	// PrimeWindowMinutes is the time-to-start under which a candidate is
	// considered close enough to the off to earn a higher confidence tier.
	PrimeWindowMinutes int `json:"prime_window_minutes" toml:"prime_window_minutes"`
}

// FavouriteGapParams tunes the favourite-gap hedge rule.
type FavouriteGapParams struct {
	MinFavouriteOdds float64 `json:"min_favourite_odds" toml:"min_favourite_odds"`
	MaxGap           float64 `json:"max_gap" toml:"max_gap"`
}

// LiquidityParams tunes the liquidity gate.
type LiquidityParams struct {
	Multiplier float64 `json:"multiplier" toml:"multiplier"`
}

// GradeSkipParams tunes the elite-grade skip rule.
type GradeSkipParams struct {
	OddsOnBelow float64 `json:"odds_on_below" toml:"odds_on_below"`
}

// Settings are the user-editable parameters of an auto-betting run. They can
// only change while the engine is stopped.
type Settings struct {
	MaxRaces           int     `json:"max_races" toml:"max_races"`
	MinStake           float64 `json:"min_stake" toml:"min_stake"`
	MaxStake           float64 `json:"max_stake" toml:"max_stake"`
	TotalLimit         float64 `json:"total_limit" toml:"total_limit"`
	OnlyPreRace        bool    `json:"only_pre_race" toml:"only_pre_race"`
	PerBetLiabilityCap float64 `json:"per_bet_liability_cap" toml:"per_bet_liability_cap"`
	DailyLiabilityCap  float64 `json:"daily_liability_cap" toml:"daily_liability_cap"`

	OddsBand     OddsBandParams     `json:"odds_band" toml:"odds_band"`
	FavouriteGap FavouriteGapParams `json:"favourite_gap" toml:"favourite_gap"`
	Liquidity    LiquidityParams    `json:"liquidity" toml:"liquidity"`
	GradeSkip    GradeSkipParams    `json:"grade_skip" toml:"grade_skip"`
}

// DefaultSettings returns conservative starting values.
func DefaultSettings() Settings {
	return Settings{
		MaxRaces:           5,
		MinStake:           1,
		MaxStake:           2,
		TotalLimit:         10,
		OnlyPreRace:        true,
		PerBetLiabilityCap: 20,
		DailyLiabilityCap:  50,
		OddsBand: OddsBandParams{
			MinOdds:            3.0,
			MaxOdds:            5.0,
			SweetMin:           3.5,
			SweetMax:           4.5,
			MaxLiability:       15,
			PrimeWindowMinutes: 120,
		},
		FavouriteGap: FavouriteGapParams{
			MinFavouriteOdds: 3.0,
			MaxGap:           1.0,
		},
		Liquidity: LiquidityParams{Multiplier: 10},
		GradeSkip: GradeSkipParams{OddsOnBelow: 2.0},
	}
}

// Validate checks the ranges of every field and reports all problems at once.
func (s Settings) Validate() error {
	var errs []string
	if s.MaxRaces < 1 {
		errs = append(errs, "max_races must be >= 1")
	}
	if s.MinStake < 0 {
		errs = append(errs, "min_stake must be >= 0")
	}
	if s.MaxStake < s.MinStake {
		errs = append(errs, "max_stake must be >= min_stake")
	}
	if s.TotalLimit <= 0 {
		errs = append(errs, "total_limit must be > 0")
	}
	if s.PerBetLiabilityCap <= 0 {
		errs = append(errs, "per_bet_liability_cap must be > 0")
	}
	if s.DailyLiabilityCap <= 0 {
		errs = append(errs, "daily_liability_cap must be > 0")
	}
	ob := s.OddsBand
	if ob.MinOdds <= 1 || ob.MaxOdds <= ob.MinOdds {
		errs = append(errs, "odds_band requires 1 < min_odds < max_odds")
	}
	if ob.SweetMin < ob.MinOdds || ob.SweetMax > ob.MaxOdds || ob.SweetMax <= ob.SweetMin {
		errs = append(errs, "odds_band sweet range must sit inside [min_odds, max_odds]")
	}
	if ob.MaxLiability <= 0 {
		errs = append(errs, "odds_band.max_liability must be > 0")
	}
	if ob.PrimeWindowMinutes < 0 {
		errs = append(errs, "odds_band.prime_window_minutes must be >= 0")
	}
	if s.FavouriteGap.MinFavouriteOdds <= 1 {
		errs = append(errs, "favourite_gap.min_favourite_odds must be > 1")
	}
	if s.FavouriteGap.MaxGap <= 0 {
		errs = append(errs, "favourite_gap.max_gap must be > 0")
	}
	if s.Liquidity.Multiplier < 0 {
		errs = append(errs, "liquidity.multiplier must be >= 0")
	}
	if s.GradeSkip.OddsOnBelow <= 1 {
		errs = append(errs, "grade_skip.odds_on_below must be > 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidSettings, strings.Join(errs, "\n  - "))
	}
	return nil
}
