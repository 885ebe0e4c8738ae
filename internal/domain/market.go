package domain

import (
	"strings"
	"time"
)

// RunnerStatus is the exchange status of a selection within a market.
type RunnerStatus string

const (
	RunnerStatusActive   RunnerStatus = "active"
	RunnerStatusInactive RunnerStatus = "inactive"
)

// RaceGrade is a coarse classification of a race derived from its free-text
// name.
type RaceGrade string

const (
	GradeStandard RaceGrade = "standard"
	GradeElite    RaceGrade = "elite"
)

// elitePatterns are matched case-insensitively against market and event names.
var elitePatterns = []string{
	"grade 1", "grade one", "grade i ", "(g1)", " g1 ",
	"group 1", "group one", "(gr1)", " gr1 ",
}

// ClassifyGrade returns GradeElite when any of the given names looks like a
// top-grade race. This is a substring heuristic over free text.
func ClassifyGrade(names ...string) RaceGrade {
	for _, n := range names {
		s := " " + strings.ToLower(n) + " "
		for _, p := range elitePatterns {
			if strings.Contains(s, p) {
				return GradeElite
			}
		}
	}
	return GradeStandard
}

// PriceSize is one level of an exchange price ladder.
type PriceSize struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Runner is a selection in a market. Ladders are nil when no live book has
// been merged; such a runner has no price.
type Runner struct {
	SelectionID  int64        `json:"selection_id"`
	Name         string       `json:"name"`
	SortPriority int          `json:"sort_priority"`
	Status       RunnerStatus `json:"status"`
	Lay          []PriceSize  `json:"lay,omitempty"`  // ascending, [0] is best
	Back         []PriceSize  `json:"back,omitempty"` // descending, [0] is best
	LastTraded   float64      `json:"last_traded,omitempty"`
	TotalMatched float64      `json:"total_matched,omitempty"`
}

// BestLay returns the best available lay level. ok is false when the runner
// has no lay price at all.
func (r Runner) BestLay() (PriceSize, bool) {
	if len(r.Lay) == 0 || r.Lay[0].Price <= 0 {
		return PriceSize{}, false
	}
	return r.Lay[0], true
}

// BestBack returns the best available back level.
func (r Runner) BestBack() (PriceSize, bool) {
	if len(r.Back) == 0 || r.Back[0].Price <= 0 {
		return PriceSize{}, false
	}
	return r.Back[0], true
}

// IsActive reports whether the runner can be bet on.
func (r Runner) IsActive() bool {
	return r.Status == RunnerStatusActive
}

// Market is a WIN market on a single horse race.
type Market struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	EventName    string    `json:"event_name"`
	Venue        string    `json:"venue"`
	CountryCode  string    `json:"country_code"`
	StartTime    time.Time `json:"start_time"`
	Runners      []Runner  `json:"runners"`
	Grade        RaceGrade `json:"grade"`
	TotalMatched float64   `json:"total_matched,omitempty"`
	// ObservedAt is when the live prices were merged onto the runners.
	ObservedAt time.Time `json:"observed_at,omitempty"`
}

// TimeToStart returns the time between ObservedAt and the scheduled start.
func (m Market) TimeToStart() time.Duration {
	return m.StartTime.Sub(m.ObservedAt)
}

// Runner returns the runner with the given selection ID.
func (m Market) Runner(selectionID int64) (Runner, bool) {
	for _, r := range m.Runners {
		if r.SelectionID == selectionID {
			return r, true
		}
	}
	return Runner{}, false
}

// RunnerBook holds the live state of one runner from a market book.
type RunnerBook struct {
	SelectionID  int64
	Status       RunnerStatus
	Lay          []PriceSize
	Back         []PriceSize
	LastTraded   float64
	TotalMatched float64
}

// MarketBook is the live price snapshot of a market.
type MarketBook struct {
	MarketID     string
	Status       string
	InPlay       bool
	TotalMatched float64
	Runners      []RunnerBook
}

// MergeBook returns a copy of m whose runners carry the prices from book.
// Catalogue runners missing from the book keep no price and are marked
// inactive.
func MergeBook(m Market, book MarketBook, observedAt time.Time) Market {
	byID := make(map[int64]RunnerBook, len(book.Runners))
	for _, rb := range book.Runners {
		byID[rb.SelectionID] = rb
	}

	out := m
	out.ObservedAt = observedAt
	out.TotalMatched = book.TotalMatched
	out.Runners = make([]Runner, len(m.Runners))
	for i, r := range m.Runners {
		rb, ok := byID[r.SelectionID]
		if !ok {
			r.Status = RunnerStatusInactive
			r.Lay, r.Back = nil, nil
			out.Runners[i] = r
			continue
		}
		r.Status = rb.Status
		r.Lay = rb.Lay
		r.Back = rb.Back
		r.LastTraded = rb.LastTraded
		r.TotalMatched = rb.TotalMatched
		out.Runners[i] = r
	}
	return out
}

// CatalogueFilter narrows a market catalogue request.
type CatalogueFilter struct {
	EventTypeIDs []string
	MarketTypes  []string
	Countries    []string
	From         time.Time
	To           time.Time
	MaxResults   int
}
