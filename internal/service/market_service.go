package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// Catalogue defaults for horse-racing WIN markets.
const (
	HorseRacingEventType = "7"
	WinMarketType        = "WIN"
	DefaultMaxResults    = 100
)

// CatalogueRequest narrows a display catalogue. Zero fields take the
// horse-racing defaults.
type CatalogueRequest struct {
	Countries  []string  `json:"countries,omitempty"`
	From       time.Time `json:"from,omitempty"`
	To         time.Time `json:"to,omitempty"`
	MaxResults int       `json:"max_results,omitempty"`
}

// MarketService serves market lists and live prices to the operator.
type MarketService struct {
	markets   domain.MarketDataGateway
	countries []string
	now       func() time.Time
	logger    *slog.Logger
}

// NewMarketService creates a MarketService. countries is the default country
// filter.
func NewMarketService(markets domain.MarketDataGateway, countries []string, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets:   markets,
		countries: countries,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "markets")),
	}
}

// Filter resolves req into a catalogue filter. The default window runs from
// now to the end of tomorrow, UTC.
func (s *MarketService) Filter(req CatalogueRequest) domain.CatalogueFilter {
	now := s.now().UTC()
	f := domain.CatalogueFilter{
		EventTypeIDs: []string{HorseRacingEventType},
		MarketTypes:  []string{WinMarketType},
		Countries:    req.Countries,
		From:         req.From,
		To:           req.To,
		MaxResults:   req.MaxResults,
	}
	if len(f.Countries) == 0 {
		f.Countries = s.countries
	}
	if f.From.IsZero() {
		f.From = now
	}
	if f.To.IsZero() {
		y, m, d := now.Date()
		f.To = time.Date(y, m, d+2, 0, 0, 0, 0, time.UTC)
	}
	if f.MaxResults <= 0 {
		f.MaxResults = DefaultMaxResults
	}
	return f
}

// Catalogue returns upcoming markets sorted by start time, then ID.
func (s *MarketService) Catalogue(ctx context.Context, req CatalogueRequest) ([]domain.Market, error) {
	markets, err := s.markets.FetchCatalogue(ctx, s.Filter(req))
	if err != nil {
		return nil, fmt.Errorf("market_service: catalogue: %w", err)
	}
	sort.SliceStable(markets, func(i, j int) bool {
		if !markets[i].StartTime.Equal(markets[j].StartTime) {
			return markets[i].StartTime.Before(markets[j].StartTime)
		}
		return markets[i].ID < markets[j].ID
	})
	s.logger.DebugContext(ctx, "catalogue fetched", slog.Int("count", len(markets)))
	return markets, nil
}

// Books returns live prices for the given markets.
func (s *MarketService) Books(ctx context.Context, marketIDs []string) ([]domain.MarketBook, error) {
	if len(marketIDs) == 0 {
		return nil, fmt.Errorf("market_service: books: %w: no market ids", domain.ErrInvalidInput)
	}
	books, err := s.markets.FetchBook(ctx, marketIDs)
	if err != nil {
		return nil, fmt.Errorf("market_service: books: %w", err)
	}
	return books, nil
}
