package domain

import "time"

// OrderSide is the exchange side of a bet. This system only lays.
type OrderSide string

const (
	OrderSideLay  OrderSide = "LAY"
	OrderSideBack OrderSide = "BACK"
)

// PlaceStatus is the overall status of a place instruction.
type PlaceStatus string

const (
	PlaceStatusSuccess PlaceStatus = "SUCCESS"
	PlaceStatusFailure PlaceStatus = "FAILURE"
)

// LayOrder asks the exchange to lay a selection at a limit price.
type LayOrder struct {
	MarketID    string
	SelectionID int64
	Odds        float64
	Stake       float64
	// CustomerRef is echoed back by the exchange and makes retries by an
	// operator idempotent.
	CustomerRef string
}

// PlaceResult is the exchange response to a place instruction. A non-nil
// error from the gateway means transport failure; a FAILURE status means the
// exchange rejected the bet.
type PlaceResult struct {
	Status              PlaceStatus `json:"status"`
	ErrorCode           string      `json:"error_code,omitempty"`
	BetID               string      `json:"bet_id,omitempty"`
	SizeMatched         float64     `json:"size_matched"`
	AveragePriceMatched float64     `json:"average_price_matched"`
	PlacedAt            time.Time   `json:"placed_at"`
}

// OK reports whether the exchange accepted the bet.
func (r PlaceResult) OK() bool {
	return r.Status == PlaceStatusSuccess && r.BetID != ""
}

// CancelResult is the exchange response to a cancel instruction.
type CancelResult struct {
	Status        PlaceStatus `json:"status"`
	ErrorCode     string      `json:"error_code,omitempty"`
	SizeCancelled float64     `json:"size_cancelled"`
}

// CurrentOrder is an unsettled order on the exchange.
type CurrentOrder struct {
	BetID       string    `json:"bet_id"`
	MarketID    string    `json:"market_id"`
	SelectionID int64     `json:"selection_id"`
	Side        OrderSide `json:"side"`
	Price       float64   `json:"price"`
	Size        float64   `json:"size"`
	SizeMatched float64   `json:"size_matched"`
	Status      string    `json:"status"`
	PlacedAt    time.Time `json:"placed_at"`
}

// AccountFunds is the wallet balance reported by the exchange.
type AccountFunds struct {
	Available float64 `json:"available"`
	Exposure  float64 `json:"exposure"`
}
