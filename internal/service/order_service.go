package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/laybot/internal/domain"
	"github.com/alanyoungcy/laybot/internal/staking"
)

// ManualRuleID marks ledger rows placed by an operator rather than a rule.
const ManualRuleID = "manual"

// SettingsSource exposes the current user settings.
type SettingsSource interface {
	Settings() domain.Settings
}

// ManualLay is an operator request to lay one selection.
type ManualLay struct {
	MarketID      string    `json:"market_id"`
	SelectionID   int64     `json:"selection_id"`
	Odds          float64   `json:"odds"`
	Stake         float64   `json:"stake"`
	MarketName    string    `json:"market_name,omitempty"`
	SelectionName string    `json:"selection_name,omitempty"`
	Venue         string    `json:"venue,omitempty"`
	StartTime     time.Time `json:"start_time,omitempty"`
}

// OrderService places, cancels and lists orders on behalf of an operator.
// Manual lays are held to the same per-bet liability cap as the engine.
type OrderService struct {
	orders   domain.OrderGateway
	ledger   domain.Ledger
	settings SettingsSource
	bus      domain.SignalBus
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewOrderService creates an OrderService. settings, bus and audit may be
// nil.
func NewOrderService(
	orders domain.OrderGateway,
	ledger domain.Ledger,
	settings SettingsSource,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:   orders,
		ledger:   ledger,
		settings: settings,
		bus:      bus,
		audit:    audit,
		logger:   logger.With(slog.String("component", "orders")),
	}
}

// PlaceLay places a manual lay bet and records it in the ledger when the
// exchange accepts it.
func (s *OrderService) PlaceLay(ctx context.Context, req ManualLay) (domain.PlaceResult, error) {
	if req.Odds <= 1 || req.Stake <= 0 {
		return domain.PlaceResult{}, fmt.Errorf("%w: odds must exceed 1 and stake must be positive", domain.ErrInvalidOrder)
	}
	liability := staking.Liability(decimal.NewFromFloat(req.Stake), decimal.NewFromFloat(req.Odds))
	if s.settings != nil {
		limit := decimal.NewFromFloat(s.settings.Settings().PerBetLiabilityCap)
		if limit.IsPositive() && liability.GreaterThan(limit) {
			return domain.PlaceResult{}, fmt.Errorf("%w: liability %s exceeds per-bet cap %s",
				domain.ErrInvalidOrder, liability.StringFixed(2), limit.StringFixed(2))
		}
	}

	res, err := s.orders.PlaceLayOrder(ctx, domain.LayOrder{
		MarketID:    req.MarketID,
		SelectionID: req.SelectionID,
		Odds:        req.Odds,
		Stake:       req.Stake,
		CustomerRef: strings.ReplaceAll(uuid.NewString(), "-", ""),
	})
	if err != nil {
		return domain.PlaceResult{}, fmt.Errorf("order_service: place lay: %w", err)
	}
	if !res.OK() {
		s.logger.WarnContext(ctx, "manual lay rejected",
			slog.String("market_id", req.MarketID),
			slog.Int64("selection_id", req.SelectionID),
			slog.String("error_code", res.ErrorCode),
		)
		return res, nil
	}

	rec := domain.BetRecord{
		ID:            uuid.NewString(),
		BetID:         res.BetID,
		MarketID:      req.MarketID,
		MarketName:    req.MarketName,
		Venue:         req.Venue,
		StartTime:     req.StartTime,
		SelectionID:   req.SelectionID,
		SelectionName: req.SelectionName,
		Side:          domain.OrderSideLay,
		Stake:         decimal.NewFromFloat(req.Stake).Round(2),
		Odds:          decimal.NewFromFloat(req.Odds).Round(2),
		Liability:     liability,
		RuleID:        ManualRuleID,
		Result:        domain.BetResultPending,
		Returns:       decimal.Zero,
		ProfitLoss:    decimal.Zero,
		PlacedAt:      res.PlacedAt,
	}
	s.ledger.RecordBet(ctx, rec)

	s.event(ctx, "order.placed", map[string]any{
		"bet_id":       res.BetID,
		"market_id":    req.MarketID,
		"selection_id": req.SelectionID,
		"odds":         req.Odds,
		"stake":        req.Stake,
		"liability":    liability.String(),
	})
	s.logger.InfoContext(ctx, "manual lay placed",
		slog.String("bet_id", res.BetID),
		slog.String("market_id", req.MarketID),
		slog.Float64("odds", req.Odds),
		slog.Float64("stake", req.Stake),
	)
	return res, nil
}

// Cancel cancels the unmatched part of a bet.
func (s *OrderService) Cancel(ctx context.Context, marketID, betID string) (domain.CancelResult, error) {
	res, err := s.orders.CancelOrder(ctx, marketID, betID)
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("order_service: cancel: %w", err)
	}
	s.event(ctx, "order.cancelled", map[string]any{
		"bet_id":         betID,
		"market_id":      marketID,
		"status":         string(res.Status),
		"size_cancelled": res.SizeCancelled,
	})
	return res, nil
}

// Current lists unsettled orders.
func (s *OrderService) Current(ctx context.Context, marketIDs []string) ([]domain.CurrentOrder, error) {
	orders, err := s.orders.CurrentOrders(ctx, marketIDs)
	if err != nil {
		return nil, fmt.Errorf("order_service: current orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) event(ctx context.Context, name string, detail map[string]any) {
	if s.bus != nil {
		payload, _ := json.Marshal(map[string]any{"event": name, "detail": detail})
		if err := s.bus.Publish(ctx, domain.ChannelBets, payload); err != nil {
			s.logger.WarnContext(ctx, "publish event failed", slog.String("event", name), slog.String("error", err.Error()))
		}
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, name, detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("event", name), slog.String("error", err.Error()))
		}
	}
}
