package betfair

import (
	"encoding/json"
	"time"
)

// --------------------------------------------------------------------------
// Betfair Exchange API DTOs
// --------------------------------------------------------------------------

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		ExceptionName  string `json:"exceptionname"`
		APINGException *struct {
			ErrorCode    string `json:"errorCode"`
			ErrorDetails string `json:"errorDetails"`
		} `json:"APINGException"`
		AccountAPINGException *struct {
			ErrorCode    string `json:"errorCode"`
			ErrorDetails string `json:"errorDetails"`
		} `json:"AccountAPINGException"`
	} `json:"data"`
}

// identityResponse is returned by login, keepAlive and logout.
type identityResponse struct {
	Token   string `json:"token"`
	Product string `json:"product"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

type timeRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

type marketFilter struct {
	EventTypeIDs    []string   `json:"eventTypeIds,omitempty"`
	MarketTypeCodes []string   `json:"marketTypeCodes,omitempty"`
	MarketCountries []string   `json:"marketCountries,omitempty"`
	MarketStartTime *timeRange `json:"marketStartTime,omitempty"`
}

type listMarketCatalogueParams struct {
	Filter           marketFilter `json:"filter"`
	MarketProjection []string     `json:"marketProjection"`
	Sort             string       `json:"sort"`
	MaxResults       int          `json:"maxResults"`
}

type marketCatalogue struct {
	MarketID        string          `json:"marketId"`
	MarketName      string          `json:"marketName"`
	MarketStartTime time.Time       `json:"marketStartTime"`
	TotalMatched    float64         `json:"totalMatched"`
	Runners         []runnerCatalog `json:"runners"`
	Event           *event          `json:"event"`
	Competition     *competition    `json:"competition"`
}

type runnerCatalog struct {
	SelectionID  int64   `json:"selectionId"`
	RunnerName   string  `json:"runnerName"`
	Handicap     float64 `json:"handicap"`
	SortPriority int     `json:"sortPriority"`
}

type event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CountryCode string    `json:"countryCode"`
	Timezone    string    `json:"timezone"`
	Venue       string    `json:"venue"`
	OpenDate    time.Time `json:"openDate"`
}

type competition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type priceProjection struct {
	PriceData  []string `json:"priceData"`
	Virtualise bool     `json:"virtualise"`
}

type listMarketBookParams struct {
	MarketIDs       []string        `json:"marketIds"`
	PriceProjection priceProjection `json:"priceProjection"`
}

type marketBook struct {
	MarketID     string       `json:"marketId"`
	Status       string       `json:"status"`
	InPlay       bool         `json:"inplay"`
	TotalMatched float64      `json:"totalMatched"`
	Runners      []runnerBook `json:"runners"`
}

type runnerBook struct {
	SelectionID     int64           `json:"selectionId"`
	Status          string          `json:"status"`
	LastPriceTraded float64         `json:"lastPriceTraded"`
	TotalMatched    float64         `json:"totalMatched"`
	Ex              *exchangePrices `json:"ex"`
}

type exchangePrices struct {
	AvailableToBack []priceSize `json:"availableToBack"`
	AvailableToLay  []priceSize `json:"availableToLay"`
}

type priceSize struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

type limitOrder struct {
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	PersistenceType string  `json:"persistenceType"`
}

type placeInstruction struct {
	SelectionID int64      `json:"selectionId"`
	Handicap    float64    `json:"handicap"`
	Side        string     `json:"side"`
	OrderType   string     `json:"orderType"`
	LimitOrder  limitOrder `json:"limitOrder"`
}

type placeOrdersParams struct {
	MarketID     string             `json:"marketId"`
	Instructions []placeInstruction `json:"instructions"`
	CustomerRef  string             `json:"customerRef,omitempty"`
}

type placeExecutionReport struct {
	CustomerRef        string                   `json:"customerRef"`
	Status             string                   `json:"status"`
	ErrorCode          string                   `json:"errorCode"`
	MarketID           string                   `json:"marketId"`
	InstructionReports []placeInstructionReport `json:"instructionReports"`
}

type placeInstructionReport struct {
	Status              string    `json:"status"`
	ErrorCode           string    `json:"errorCode"`
	BetID               string    `json:"betId"`
	PlacedDate          time.Time `json:"placedDate"`
	AveragePriceMatched float64   `json:"averagePriceMatched"`
	SizeMatched         float64   `json:"sizeMatched"`
}

type cancelInstruction struct {
	BetID string `json:"betId"`
}

type cancelOrdersParams struct {
	MarketID     string              `json:"marketId"`
	Instructions []cancelInstruction `json:"instructions,omitempty"`
}

type cancelExecutionReport struct {
	Status             string                    `json:"status"`
	ErrorCode          string                    `json:"errorCode"`
	MarketID           string                    `json:"marketId"`
	InstructionReports []cancelInstructionReport `json:"instructionReports"`
}

type cancelInstructionReport struct {
	Status        string  `json:"status"`
	ErrorCode     string  `json:"errorCode"`
	SizeCancelled float64 `json:"sizeCancelled"`
}

type listCurrentOrdersParams struct {
	MarketIDs []string `json:"marketIds,omitempty"`
}

type currentOrderSummaryReport struct {
	CurrentOrders []currentOrderSummary `json:"currentOrders"`
	MoreAvailable bool                  `json:"moreAvailable"`
}

type currentOrderSummary struct {
	BetID       string    `json:"betId"`
	MarketID    string    `json:"marketId"`
	SelectionID int64     `json:"selectionId"`
	Side        string    `json:"side"`
	PriceSize   priceSize `json:"priceSize"`
	Status      string    `json:"status"`
	SizeMatched float64   `json:"sizeMatched"`
	PlacedDate  time.Time `json:"placedDate"`
}

type accountFundsResponse struct {
	AvailableToBetBalance float64 `json:"availableToBetBalance"`
	Exposure              float64 `json:"exposure"`
}
