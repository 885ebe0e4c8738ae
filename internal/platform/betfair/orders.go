package betfair

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// Exchange order bounds.
const (
	MinOdds        = 1.01
	MaxOdds        = 1000.0
	MinBetPayout   = 10.0 // stakes under 1 must pay out at least this much
	customerRefMax = 32
)

// ValidateLayOrder checks o against exchange bounds and returns it with
// stake and odds rounded to two decimals.
func ValidateLayOrder(o domain.LayOrder) (domain.LayOrder, error) {
	if o.MarketID == "" {
		return o, fmt.Errorf("%w: market id is required", domain.ErrInvalidOrder)
	}
	if o.SelectionID <= 0 {
		return o, fmt.Errorf("%w: selection id must be positive", domain.ErrInvalidOrder)
	}
	o.Odds = round2(o.Odds)
	o.Stake = round2(o.Stake)
	if o.Odds <= MinOdds || o.Odds > MaxOdds {
		return o, fmt.Errorf("%w: odds %.2f outside (%.2f, %.0f]", domain.ErrInvalidOrder, o.Odds, MinOdds, MaxOdds)
	}
	if o.Stake <= 0 {
		return o, fmt.Errorf("%w: stake must be positive", domain.ErrInvalidOrder)
	}
	if o.Stake < 1 && o.Stake*o.Odds < MinBetPayout {
		return o, fmt.Errorf("%w: stake %.2f below minimum payout", domain.ErrInvalidOrder, o.Stake)
	}
	if len(o.CustomerRef) > customerRefMax {
		o.CustomerRef = o.CustomerRef[:customerRefMax]
	}
	return o, nil
}

// PlaceLayOrder places a single LIMIT lay bet that lapses at the off.
func (c *Client) PlaceLayOrder(ctx context.Context, order domain.LayOrder) (domain.PlaceResult, error) {
	o, err := ValidateLayOrder(order)
	if err != nil {
		return domain.PlaceResult{}, err
	}

	params := placeOrdersParams{
		MarketID: o.MarketID,
		Instructions: []placeInstruction{{
			SelectionID: o.SelectionID,
			Side:        string(domain.OrderSideLay),
			OrderType:   "LIMIT",
			LimitOrder: limitOrder{
				Size:            o.Stake,
				Price:           o.Odds,
				PersistenceType: "LAPSE",
			},
		}},
		CustomerRef: o.CustomerRef,
	}

	var rep placeExecutionReport
	if err := c.call(ctx, c.cfg.BettingURL, bettingMethod("placeOrders"), params, &rep, o.MarketID); err != nil {
		return domain.PlaceResult{}, err
	}

	res := domain.PlaceResult{
		Status:    domain.PlaceStatus(rep.Status),
		ErrorCode: rep.ErrorCode,
		PlacedAt:  time.Now().UTC(),
	}
	if len(rep.InstructionReports) > 0 {
		ir := rep.InstructionReports[0]
		res.BetID = ir.BetID
		res.SizeMatched = ir.SizeMatched
		res.AveragePriceMatched = ir.AveragePriceMatched
		if !ir.PlacedDate.IsZero() {
			res.PlacedAt = ir.PlacedDate
		}
		if res.ErrorCode == "" {
			res.ErrorCode = ir.ErrorCode
		}
	}
	if res.Status != domain.PlaceStatusSuccess {
		res.Status = domain.PlaceStatusFailure
	}
	return res, nil
}

// CancelOrder cancels the unmatched part of a bet.
func (c *Client) CancelOrder(ctx context.Context, marketID, betID string) (domain.CancelResult, error) {
	if marketID == "" || betID == "" {
		return domain.CancelResult{}, fmt.Errorf("%w: market id and bet id are required", domain.ErrInvalidOrder)
	}
	params := cancelOrdersParams{
		MarketID:     marketID,
		Instructions: []cancelInstruction{{BetID: betID}},
	}

	var rep cancelExecutionReport
	if err := c.call(ctx, c.cfg.BettingURL, bettingMethod("cancelOrders"), params, &rep, marketID); err != nil {
		return domain.CancelResult{}, err
	}

	res := domain.CancelResult{Status: domain.PlaceStatus(rep.Status), ErrorCode: rep.ErrorCode}
	if len(rep.InstructionReports) > 0 {
		res.SizeCancelled = rep.InstructionReports[0].SizeCancelled
		if res.ErrorCode == "" {
			res.ErrorCode = rep.InstructionReports[0].ErrorCode
		}
	}
	if res.Status != domain.PlaceStatusSuccess {
		res.Status = domain.PlaceStatusFailure
	}
	return res, nil
}

// CurrentOrders lists unsettled orders, optionally narrowed to marketIDs.
func (c *Client) CurrentOrders(ctx context.Context, marketIDs []string) ([]domain.CurrentOrder, error) {
	var rep currentOrderSummaryReport
	params := listCurrentOrdersParams{MarketIDs: marketIDs}
	if err := c.call(ctx, c.cfg.BettingURL, bettingMethod("listCurrentOrders"), params, &rep, ""); err != nil {
		return nil, err
	}

	out := make([]domain.CurrentOrder, 0, len(rep.CurrentOrders))
	for _, o := range rep.CurrentOrders {
		out = append(out, domain.CurrentOrder{
			BetID:       o.BetID,
			MarketID:    o.MarketID,
			SelectionID: o.SelectionID,
			Side:        domain.OrderSide(o.Side),
			Price:       o.PriceSize.Price,
			Size:        o.PriceSize.Size,
			SizeMatched: o.SizeMatched,
			Status:      o.Status,
			PlacedAt:    o.PlacedDate,
		})
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var _ domain.OrderGateway = (*Client)(nil)
