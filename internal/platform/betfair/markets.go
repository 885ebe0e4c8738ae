package betfair

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/laybot/internal/domain"
)

const (
	maxCatalogueResults = 1000
	maxBookMarkets      = 40
)

var catalogueProjection = []string{"RUNNER_DESCRIPTION", "MARKET_START_TIME", "EVENT", "COMPETITION"}

// FetchCatalogue lists markets matching filter, soonest first. Runners come
// back without prices.
func (c *Client) FetchCatalogue(ctx context.Context, filter domain.CatalogueFilter) ([]domain.Market, error) {
	params := listMarketCatalogueParams{
		Filter: marketFilter{
			EventTypeIDs:    filter.EventTypeIDs,
			MarketTypeCodes: filter.MarketTypes,
			MarketCountries: filter.Countries,
		},
		MarketProjection: catalogueProjection,
		Sort:             "FIRST_TO_START",
		MaxResults:       clampResults(filter.MaxResults),
	}
	if !filter.From.IsZero() || !filter.To.IsZero() {
		tr := &timeRange{}
		if !filter.From.IsZero() {
			tr.From = filter.From.UTC().Format(time.RFC3339)
		}
		if !filter.To.IsZero() {
			tr.To = filter.To.UTC().Format(time.RFC3339)
		}
		params.Filter.MarketStartTime = tr
	}

	var cats []marketCatalogue
	if err := c.call(ctx, c.cfg.BettingURL, bettingMethod("listMarketCatalogue"), params, &cats, ""); err != nil {
		return nil, err
	}

	markets := make([]domain.Market, 0, len(cats))
	for _, mc := range cats {
		markets = append(markets, toMarket(mc))
	}
	return markets, nil
}

// FetchBook returns live best-offer prices for up to 40 markets.
func (c *Client) FetchBook(ctx context.Context, marketIDs []string) ([]domain.MarketBook, error) {
	if len(marketIDs) == 0 {
		return nil, nil
	}
	if len(marketIDs) > maxBookMarkets {
		return nil, fmt.Errorf("betfair: listMarketBook: %d markets exceeds limit of %d", len(marketIDs), maxBookMarkets)
	}

	params := listMarketBookParams{
		MarketIDs: marketIDs,
		PriceProjection: priceProjection{
			PriceData:  []string{"EX_BEST_OFFERS"},
			Virtualise: true,
		},
	}

	var books []marketBook
	rateKey := strings.Join(marketIDs, ",")
	if err := c.call(ctx, c.cfg.BettingURL, bettingMethod("listMarketBook"), params, &books, rateKey); err != nil {
		return nil, err
	}

	out := make([]domain.MarketBook, 0, len(books))
	for _, b := range books {
		out = append(out, toMarketBook(b))
	}
	return out, nil
}

func clampResults(n int) int {
	switch {
	case n <= 0:
		return 100
	case n > maxCatalogueResults:
		return maxCatalogueResults
	default:
		return n
	}
}

func toMarket(mc marketCatalogue) domain.Market {
	m := domain.Market{
		ID:           mc.MarketID,
		Name:         mc.MarketName,
		StartTime:    mc.MarketStartTime,
		TotalMatched: mc.TotalMatched,
		Runners:      make([]domain.Runner, 0, len(mc.Runners)),
	}
	names := []string{mc.MarketName}
	if mc.Event != nil {
		m.EventName = mc.Event.Name
		m.Venue = mc.Event.Venue
		m.CountryCode = mc.Event.CountryCode
		names = append(names, mc.Event.Name)
	}
	if mc.Competition != nil {
		names = append(names, mc.Competition.Name)
	}
	m.Grade = domain.ClassifyGrade(names...)

	for _, rc := range mc.Runners {
		m.Runners = append(m.Runners, domain.Runner{
			SelectionID:  rc.SelectionID,
			Name:         rc.RunnerName,
			SortPriority: rc.SortPriority,
			Status:       domain.RunnerStatusActive,
		})
	}
	return m
}

func toMarketBook(b marketBook) domain.MarketBook {
	mb := domain.MarketBook{
		MarketID:     b.MarketID,
		Status:       b.Status,
		InPlay:       b.InPlay,
		TotalMatched: b.TotalMatched,
		Runners:      make([]domain.RunnerBook, 0, len(b.Runners)),
	}
	for _, r := range b.Runners {
		rb := domain.RunnerBook{
			SelectionID:  r.SelectionID,
			Status:       domain.RunnerStatusInactive,
			LastTraded:   r.LastPriceTraded,
			TotalMatched: r.TotalMatched,
		}
		if r.Status == "ACTIVE" {
			rb.Status = domain.RunnerStatusActive
		}
		if r.Ex != nil {
			rb.Lay = toLadder(r.Ex.AvailableToLay)
			rb.Back = toLadder(r.Ex.AvailableToBack)
		}
		mb.Runners = append(mb.Runners, rb)
	}
	return mb
}

func toLadder(in []priceSize) []domain.PriceSize {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.PriceSize, len(in))
	for i, p := range in {
		out[i] = domain.PriceSize{Price: p.Price, Size: p.Size}
	}
	return out
}

var _ domain.MarketDataGateway = (*Client)(nil)
