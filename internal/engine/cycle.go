package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/laybot/internal/domain"
	"github.com/alanyoungcy/laybot/internal/rules"
	"github.com/alanyoungcy/laybot/internal/staking"
)

// Horse racing on the exchange.
const (
	eventTypeHorseRacing = "7"
	marketTypeWin        = "WIN"
)

// cycle is one poll/evaluate/place pass. Network failures become activity
// entries; nothing escapes to the caller.
func (e *Engine) cycle(ctx context.Context) {
	e.mu.Lock()
	if e.run != StateRunning || len(e.active) == 0 {
		e.mu.Unlock()
		return
	}
	gen := e.gen
	settings := e.settings
	active := make(map[string]bool, len(e.active))
	for id := range e.active {
		active[id] = true
	}
	processed := make(map[string]struct{}, len(e.sess.processed))
	for id := range e.sess.processed {
		processed[id] = struct{}{}
	}
	reason, stop := e.sess.stopCondition(settings)
	lease := e.lease
	e.mu.Unlock()

	if stop {
		e.halt(ctx, gen, reason, domain.ActivityWarning)
		return
	}

	if lease != nil {
		if err := lease.Refresh(ctx); err != nil {
			e.halt(ctx, gen, "Lost the engine run lock: "+err.Error(), domain.ActivityError)
			return
		}
	}

	now := e.clock.Now()
	markets, err := e.markets.FetchCatalogue(ctx, e.catalogueFilter(now))
	if !e.current(gen) {
		return
	}
	if err != nil {
		e.record(ctx, domain.ActivityError, "catalogue_failed", "", "Market catalogue fetch failed: "+err.Error())
		return
	}

	eligible := e.eligible(markets, settings, processed)
	if len(eligible) == 0 {
		e.record(ctx, domain.ActivityInfo, "no_eligible_markets", "", "No eligible markets")
		return
	}
	market := e.selectMarket(eligible)

	books, err := e.markets.FetchBook(ctx, []string{market.ID})
	if !e.current(gen) {
		return
	}
	book, found := findBook(books, market.ID)
	if err != nil || !found {
		msg := "no book returned"
		if err != nil {
			msg = err.Error()
		}
		e.record(ctx, domain.ActivityError, "book_failed", market.ID,
			fmt.Sprintf("Price fetch failed for %s: %s", describe(market), msg))
		e.finishMarket(ctx, gen, market.ID)
		return
	}

	live := domain.MergeBook(market, book, e.clock.Now())
	res := e.rules.Evaluate(active, live.Runners, settings, live)
	switch res.Outcome.Kind {
	case rules.KindSkip:
		e.record(ctx, domain.ActivityWarning, "market_skipped", live.ID,
			fmt.Sprintf("%s skipped by %s: %s", describe(live), res.RuleID, res.Outcome.Reason))
	case rules.KindMatched:
		e.placeSelections(ctx, gen, live, res, settings)
	default:
		e.record(ctx, domain.ActivityInfo, "no_match", live.ID,
			fmt.Sprintf("%s: no rule matched", describe(live)))
	}

	e.finishMarket(ctx, gen, market.ID)
}

// current reports whether run gen is still the active run.
func (e *Engine) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run == StateRunning && e.gen == gen
}

func (e *Engine) catalogueFilter(now time.Time) domain.CatalogueFilter {
	y, m, d := now.UTC().Date()
	return domain.CatalogueFilter{
		EventTypeIDs: []string{eventTypeHorseRacing},
		MarketTypes:  []string{marketTypeWin},
		Countries:    e.cfg.Countries,
		From:         now,
		To:           time.Date(y, m, d+1, 23, 59, 59, 0, time.UTC),
		MaxResults:   e.cfg.MaxResults,
	}
}

// eligible filters the catalogue by country, pre-race window and the
// processed set. The window is measured against a fresh clock reading.
func (e *Engine) eligible(markets []domain.Market, s domain.Settings, processed map[string]struct{}) []domain.Market {
	allowed := make(map[string]bool, len(e.cfg.Countries))
	for _, c := range e.cfg.Countries {
		allowed[strings.ToUpper(c)] = true
	}
	now := e.clock.Now()

	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if _, done := processed[m.ID]; done {
			continue
		}
		if len(allowed) > 0 && !allowed[strings.ToUpper(m.CountryCode)] {
			continue
		}
		if s.OnlyPreRace {
			tts := m.StartTime.Sub(now)
			if tts < 0 || tts > e.cfg.PreRaceWindow {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func (e *Engine) selectMarket(eligible []domain.Market) domain.Market {
	if e.cfg.Selection == SelectSoonest {
		sorted := make([]domain.Market, len(eligible))
		copy(sorted, eligible)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].StartTime.Before(sorted[j].StartTime)
		})
		return sorted[0]
	}
	return eligible[0]
}

func findBook(books []domain.MarketBook, marketID string) (domain.MarketBook, bool) {
	for _, b := range books {
		if b.MarketID == marketID {
			return b, true
		}
	}
	return domain.MarketBook{}, false
}

// finishMarket marks a market processed and counts the race, then checks the
// stop conditions. A market is counted at most once.
func (e *Engine) finishMarket(ctx context.Context, gen uint64, marketID string) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	if _, done := e.sess.processed[marketID]; !done {
		e.sess.processed[marketID] = struct{}{}
		e.sess.racesProcessed++
	}
	reason, stop := e.sess.stopCondition(e.settings)
	running := e.run == StateRunning
	e.mu.Unlock()

	e.publishSession(ctx)
	if running && stop {
		e.halt(ctx, gen, reason, domain.ActivityInfo)
	}
}

// placeSelections sizes and places each selection in turn. A failure on one
// selection never prevents the next.
func (e *Engine) placeSelections(ctx context.Context, gen uint64, market domain.Market, res rules.Result, settings domain.Settings) {
	for _, sel := range res.Outcome.Selections {
		if !e.current(gen) {
			e.record(ctx, domain.ActivityInfo, "placement_abandoned", market.ID,
				"Engine stopped before remaining selections were placed")
			return
		}

		e.mu.Lock()
		budget := e.sess.budget()
		e.mu.Unlock()

		d := staking.Size(sel.Stake, sel.Odds, settings, budget)
		switch d.Verdict {
		case staking.Exhausted:
			reason := "Budget exhausted: " + d.Reason
			e.alert(ctx, "budget_exhausted", "Budget exhausted", reason)
			e.halt(ctx, gen, reason, domain.ActivityWarning)
			return
		case staking.Discard:
			e.record(ctx, domain.ActivityWarning, "selection_discarded", market.ID,
				fmt.Sprintf("%s discarded: %s", sel.Runner.Name, d.Reason))
			continue
		case staking.SkipDaily:
			e.record(ctx, domain.ActivityWarning, "daily_cap", market.ID,
				fmt.Sprintf("%s skipped: %s", sel.Runner.Name, d.Reason))
			continue
		}

		e.place(ctx, gen, market, res.RuleID, sel, d)
	}
}

func (e *Engine) place(ctx context.Context, gen uint64, market domain.Market, ruleID string, sel rules.Selection, d staking.Decision) {
	order := domain.LayOrder{
		MarketID:    market.ID,
		SelectionID: sel.Runner.SelectionID,
		Odds:        sel.Odds,
		Stake:       d.Stake.InexactFloat64(),
		CustomerRef: strings.ReplaceAll(uuid.NewString(), "-", ""),
	}

	result, err := e.orders.PlaceLayOrder(ctx, order)
	if err != nil {
		msg := fmt.Sprintf("Lay %s %s @ %.2f on %s failed: %v",
			sel.Runner.Name, d.Stake.StringFixed(2), sel.Odds, describe(market), err)
		e.record(ctx, domain.ActivityError, "placement_failed", market.ID, msg)
		e.alert(ctx, "placement_failed", "Bet placement failed", msg)
		return
	}
	if !result.OK() {
		code := result.ErrorCode
		if code == "" {
			code = string(result.Status)
		}
		msg := fmt.Sprintf("Lay %s %s @ %.2f on %s rejected: %s",
			sel.Runner.Name, d.Stake.StringFixed(2), sel.Odds, describe(market), code)
		e.record(ctx, domain.ActivityError, "placement_rejected", market.ID, msg)
		e.alert(ctx, "placement_failed", "Bet rejected", msg)
		return
	}

	e.mu.Lock()
	if e.gen == gen {
		e.sess.betsPlaced++
		e.sess.totalStaked = e.sess.totalStaked.Add(d.Stake)
		e.sess.dailyLiability = e.sess.dailyLiability.Add(d.Liability)
	}
	e.mu.Unlock()

	placedAt := result.PlacedAt
	if placedAt.IsZero() {
		placedAt = e.clock.Now()
	}
	e.ledger.RecordBet(ctx, domain.BetRecord{
		ID:            uuid.NewString(),
		BetID:         result.BetID,
		MarketID:      market.ID,
		MarketName:    market.Name,
		Venue:         market.Venue,
		StartTime:     market.StartTime,
		SelectionID:   sel.Runner.SelectionID,
		SelectionName: sel.Runner.Name,
		Side:          domain.OrderSideLay,
		Stake:         d.Stake,
		Odds:          decimal.NewFromFloat(sel.Odds),
		Liability:     d.Liability,
		RuleID:        ruleID,
		Result:        domain.BetResultPending,
		PlacedAt:      placedAt,
	})

	msg := fmt.Sprintf("Laid %s %s @ %.2f on %s (liability %s)",
		sel.Runner.Name, d.Stake.StringFixed(2), sel.Odds, describe(market), d.Liability.StringFixed(2))
	e.record(ctx, domain.ActivitySuccess, "bet_placed", market.ID, msg)
	e.alert(ctx, "bet_placed", "Lay bet placed", msg)
	e.logger.InfoContext(ctx, "lay placed",
		slog.String("bet_id", result.BetID),
		slog.String("market_id", market.ID),
		slog.Int64("selection_id", sel.Runner.SelectionID),
		slog.String("stake", d.Stake.String()),
		slog.Float64("odds", sel.Odds),
		slog.String("rule", ruleID),
	)
}

func describe(m domain.Market) string {
	when := m.StartTime.UTC().Format("15:04")
	switch {
	case m.Venue != "":
		return fmt.Sprintf("%s %s", when, m.Venue)
	case m.EventName != "":
		return fmt.Sprintf("%s %s", when, m.EventName)
	default:
		return m.ID
	}
}
