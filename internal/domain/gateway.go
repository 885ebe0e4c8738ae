package domain

import "context"

// MarketDataGateway reads markets and live prices from the exchange.
type MarketDataGateway interface {
	FetchCatalogue(ctx context.Context, filter CatalogueFilter) ([]Market, error)
	FetchBook(ctx context.Context, marketIDs []string) ([]MarketBook, error)
}

// OrderGateway places and cancels bets on the exchange.
type OrderGateway interface {
	PlaceLayOrder(ctx context.Context, order LayOrder) (PlaceResult, error)
	CancelOrder(ctx context.Context, marketID, betID string) (CancelResult, error)
	CurrentOrders(ctx context.Context, marketIDs []string) ([]CurrentOrder, error)
}

// AccountGateway reads the account wallet.
type AccountGateway interface {
	AccountFunds(ctx context.Context) (AccountFunds, error)
}

// SessionGateway manages the exchange login session.
type SessionGateway interface {
	Login(ctx context.Context, username, password string) error
	KeepAlive(ctx context.Context) error
	Logout(ctx context.Context) error
	LoggedIn() bool
}
