package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/laybot/internal/domain"
	"github.com/alanyoungcy/laybot/internal/staking"
)

// State is the engine's run state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// session holds the counters of one run. It is only touched under
// Engine.mu.
type session struct {
	betsPlaced     int
	totalStaked    decimal.Decimal
	racesProcessed int
	dailyLiability decimal.Decimal
	processed      map[string]struct{}
	startedAt      time.Time
	stoppedAt      time.Time
	stopReason     string
}

func newSession(now time.Time) session {
	return session{
		totalStaked:    decimal.Zero,
		dailyLiability: decimal.Zero,
		processed:      make(map[string]struct{}),
		startedAt:      now,
	}
}

func (s *session) budget() staking.Budget {
	return staking.Budget{TotalStaked: s.totalStaked, DailyLiability: s.dailyLiability}
}

// stopCondition returns the reason the run must end, if any.
func (s *session) stopCondition(st domain.Settings) (string, bool) {
	switch {
	case s.racesProcessed >= st.MaxRaces:
		return "Race limit reached", true
	case s.totalStaked.GreaterThanOrEqual(decimal.NewFromFloat(st.TotalLimit)):
		return "Total stake limit reached", true
	case s.dailyLiability.GreaterThanOrEqual(decimal.NewFromFloat(st.DailyLiabilityCap)):
		return "Daily liability cap reached", true
	}
	return "", false
}

// SessionSnapshot is a read-only copy of the run counters.
type SessionSnapshot struct {
	BetsPlaced         int             `json:"bets_placed"`
	TotalStaked        decimal.Decimal `json:"total_staked"`
	RacesProcessed     int             `json:"races_processed"`
	DailyLiability     decimal.Decimal `json:"daily_liability"`
	ProcessedMarketIDs []string        `json:"processed_market_ids"`
	StartedAt          *time.Time      `json:"started_at,omitempty"`
	StoppedAt          *time.Time      `json:"stopped_at,omitempty"`
	StopReason         string          `json:"stop_reason,omitempty"`
}

func (s *session) snapshot() SessionSnapshot {
	ids := make([]string, 0, len(s.processed))
	for id := range s.processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	snap := SessionSnapshot{
		BetsPlaced:         s.betsPlaced,
		TotalStaked:        s.totalStaked,
		RacesProcessed:     s.racesProcessed,
		DailyLiability:     s.dailyLiability,
		ProcessedMarketIDs: ids,
		StopReason:         s.stopReason,
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.stoppedAt.IsZero() {
		t := s.stoppedAt
		snap.StoppedAt = &t
	}
	return snap
}
