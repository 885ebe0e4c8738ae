package betfair

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/laybot/internal/domain"
)

type rpcCall struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Token  string          `json:"-"`
	AppKey string          `json:"-"`
}

type exchangeStub struct {
	t      *testing.T
	mu     sync.Mutex
	calls  []rpcCall
	result map[string]any
	errs   map[string]map[string]any
}

func newExchangeStub(t *testing.T) (*exchangeStub, *httptest.Server) {
	t.Helper()
	stub := &exchangeStub{t: t, result: map[string]any{}, errs: map[string]map[string]any{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") == "alice" && r.PostForm.Get("password") == "secret" {
			writeJSON(w, map[string]string{"token": "tok-1", "status": "SUCCESS"})
			return
		}
		writeJSON(w, map[string]string{"status": "FAIL", "error": "INVALID_USERNAME_OR_PASSWORD"})
	})
	mux.HandleFunc("/api/keepAlive", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Authentication") == "" {
			writeJSON(w, map[string]string{"status": "FAIL", "error": "NO_SESSION"})
			return
		}
		writeJSON(w, map[string]string{"token": "tok-2", "status": "SUCCESS"})
	})
	mux.HandleFunc("/api/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "SUCCESS"})
	})
	rpc := func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var call rpcCall
		require.NoError(t, json.Unmarshal(body, &call))
		call.Token = r.Header.Get("X-Authentication")
		call.AppKey = r.Header.Get("X-Application")

		stub.mu.Lock()
		stub.calls = append(stub.calls, call)
		res, hasRes := stub.result[call.Method]
		rpcErr, hasErr := stub.errs[call.Method]
		stub.mu.Unlock()

		resp := map[string]any{"jsonrpc": "2.0", "id": 1}
		switch {
		case hasErr:
			resp["error"] = rpcErr
		case hasRes:
			resp["result"] = res
		default:
			resp["result"] = []any{}
		}
		writeJSON(w, resp)
	}
	mux.HandleFunc("/betting", rpc)
	mux.HandleFunc("/account", rpc)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return stub, srv
}

func (s *exchangeStub) last() rpcCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(s.t, s.calls)
	return s.calls[len(s.calls)-1]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(srv *httptest.Server, limiter domain.RateLimiter) *Client {
	return NewClient(Config{
		AppKey:      "app-key",
		IdentityURL: srv.URL + "/api",
		BettingURL:  srv.URL + "/betting",
		AccountURL:  srv.URL + "/account",
		Timeout:     2 * time.Second,
	}, limiter, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLoginStoresToken(t *testing.T) {
	_, srv := newExchangeStub(t)
	c := newTestClient(srv, nil)

	require.False(t, c.LoggedIn())
	require.NoError(t, c.Login(context.Background(), "alice", "secret"))
	assert.True(t, c.LoggedIn())
	assert.WithinDuration(t, time.Now().Add(SessionLifetime), c.ExpiresAt(), time.Minute)
}

func TestLoginRejected(t *testing.T) {
	_, srv := newExchangeStub(t)
	c := newTestClient(srv, nil)

	err := c.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, c.LoggedIn())
}

func TestKeepAliveAndLogout(t *testing.T) {
	_, srv := newExchangeStub(t)
	c := newTestClient(srv, nil)
	ctx := context.Background()

	require.ErrorIs(t, c.KeepAlive(ctx), domain.ErrNoSession)

	require.NoError(t, c.Login(ctx, "alice", "secret"))
	require.NoError(t, c.KeepAlive(ctx))
	tok, err := c.sessionToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)

	require.NoError(t, c.Logout(ctx))
	assert.False(t, c.LoggedIn())
}

func TestCallRequiresSession(t *testing.T) {
	_, srv := newExchangeStub(t)
	c := newTestClient(srv, nil)

	_, err := c.FetchCatalogue(context.Background(), domain.CatalogueFilter{})
	require.ErrorIs(t, err, domain.ErrNoSession)
}

func TestFetchCatalogue(t *testing.T) {
	stub, srv := newExchangeStub(t)
	start := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)
	stub.result["SportsAPING/v1.0/listMarketCatalogue"] = []map[string]any{{
		"marketId":        "1.234",
		"marketName":      "2m4f Grade 1 Hrd",
		"marketStartTime": start.Format(time.RFC3339),
		"event":           map[string]any{"name": "Leop 1st Mar", "countryCode": "IE", "venue": "Leopardstown"},
		"runners": []map[string]any{
			{"selectionId": 11, "runnerName": "Alpha", "sortPriority": 1},
			{"selectionId": 12, "runnerName": "Bravo", "sortPriority": 2},
		},
	}}

	c := newTestClient(srv, nil)
	c.SetToken("tok")

	markets, err := c.FetchCatalogue(context.Background(), domain.CatalogueFilter{
		EventTypeIDs: []string{"7"},
		MarketTypes:  []string{"WIN"},
		Countries:    []string{"GB", "IE"},
		From:         start.Add(-time.Hour),
		To:           start.Add(time.Hour),
		MaxResults:   5000,
	})
	require.NoError(t, err)
	require.Len(t, markets, 1)

	m := markets[0]
	assert.Equal(t, "1.234", m.ID)
	assert.Equal(t, "Leopardstown", m.Venue)
	assert.Equal(t, "IE", m.CountryCode)
	assert.Equal(t, domain.GradeElite, m.Grade)
	assert.True(t, m.StartTime.Equal(start))
	require.Len(t, m.Runners, 2)
	assert.Equal(t, "Bravo", m.Runners[1].Name)
	assert.True(t, m.Runners[0].IsActive())

	call := stub.last()
	assert.Equal(t, "tok", call.Token)
	assert.Equal(t, "app-key", call.AppKey)
	var params listMarketCatalogueParams
	require.NoError(t, json.Unmarshal(call.Params, &params))
	assert.Equal(t, maxCatalogueResults, params.MaxResults)
	assert.Equal(t, "FIRST_TO_START", params.Sort)
	assert.Equal(t, []string{"GB", "IE"}, params.Filter.MarketCountries)
	require.NotNil(t, params.Filter.MarketStartTime)
	assert.Equal(t, "2026-03-01T13:30:00Z", params.Filter.MarketStartTime.From)
}

func TestFetchBook(t *testing.T) {
	stub, srv := newExchangeStub(t)
	stub.result["SportsAPING/v1.0/listMarketBook"] = []map[string]any{{
		"marketId": "1.234",
		"status":   "OPEN",
		"runners": []map[string]any{
			{
				"selectionId": 11,
				"status":      "ACTIVE",
				"ex": map[string]any{
					"availableToLay":  []map[string]any{{"price": 3.8, "size": 120}},
					"availableToBack": []map[string]any{{"price": 3.7, "size": 40}},
				},
			},
			{"selectionId": 12, "status": "REMOVED"},
		},
	}}

	c := newTestClient(srv, nil)
	c.SetToken("tok")

	books, err := c.FetchBook(context.Background(), []string{"1.234"})
	require.NoError(t, err)
	require.Len(t, books, 1)
	b := books[0]
	require.Len(t, b.Runners, 2)
	assert.Equal(t, domain.RunnerStatusActive, b.Runners[0].Status)
	assert.Equal(t, []domain.PriceSize{{Price: 3.8, Size: 120}}, b.Runners[0].Lay)
	assert.Equal(t, domain.RunnerStatusInactive, b.Runners[1].Status)
	assert.Nil(t, b.Runners[1].Lay)

	var params listMarketBookParams
	require.NoError(t, json.Unmarshal(stub.last().Params, &params))
	assert.Equal(t, []string{"EX_BEST_OFFERS"}, params.PriceProjection.PriceData)
	assert.True(t, params.PriceProjection.Virtualise)
}

func TestFetchBookLimits(t *testing.T) {
	_, srv := newExchangeStub(t)
	c := newTestClient(srv, nil)
	c.SetToken("tok")

	books, err := c.FetchBook(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, books)

	ids := make([]string, maxBookMarkets+1)
	for i := range ids {
		ids[i] = "1.1"
	}
	_, err = c.FetchBook(context.Background(), ids)
	require.Error(t, err)
}

func TestValidateLayOrder(t *testing.T) {
	base := domain.LayOrder{MarketID: "1.1", SelectionID: 7, Odds: 3.8, Stake: 2}

	tests := []struct {
		name    string
		mutate  func(o *domain.LayOrder)
		wantErr bool
	}{
		{"valid", func(o *domain.LayOrder) {}, false},
		{"missing market", func(o *domain.LayOrder) { o.MarketID = "" }, true},
		{"bad selection", func(o *domain.LayOrder) { o.SelectionID = 0 }, true},
		{"odds at floor", func(o *domain.LayOrder) { o.Odds = 1.01 }, true},
		{"odds above ceiling", func(o *domain.LayOrder) { o.Odds = 1001 }, true},
		{"odds at ceiling", func(o *domain.LayOrder) { o.Odds = 1000 }, false},
		{"zero stake", func(o *domain.LayOrder) { o.Stake = 0 }, true},
		{"small stake low payout", func(o *domain.LayOrder) { o.Stake = 0.5; o.Odds = 4 }, true},
		{"small stake enough payout", func(o *domain.LayOrder) { o.Stake = 0.5; o.Odds = 25 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base
			tt.mutate(&o)
			_, err := ValidateLayOrder(o)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidOrder)
				return
			}
			require.NoError(t, err)
		})
	}

	o, err := ValidateLayOrder(domain.LayOrder{MarketID: "1.1", SelectionID: 7, Odds: 3.804, Stake: 2.456})
	require.NoError(t, err)
	assert.Equal(t, 3.8, o.Odds)
	assert.Equal(t, 2.46, o.Stake)
}

func TestPlaceLayOrder(t *testing.T) {
	stub, srv := newExchangeStub(t)
	placed := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	stub.result["SportsAPING/v1.0/placeOrders"] = map[string]any{
		"status":   "SUCCESS",
		"marketId": "1.234",
		"instructionReports": []map[string]any{{
			"status":              "SUCCESS",
			"betId":               "31337",
			"placedDate":          placed.Format(time.RFC3339),
			"sizeMatched":         2,
			"averagePriceMatched": 3.8,
		}},
	}

	c := newTestClient(srv, nil)
	c.SetToken("tok")

	res, err := c.PlaceLayOrder(context.Background(), domain.LayOrder{
		MarketID: "1.234", SelectionID: 11, Odds: 3.8, Stake: 2, CustomerRef: "ref-1",
	})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "31337", res.BetID)
	assert.Equal(t, 2.0, res.SizeMatched)
	assert.True(t, res.PlacedAt.Equal(placed))

	var params placeOrdersParams
	require.NoError(t, json.Unmarshal(stub.last().Params, &params))
	require.Len(t, params.Instructions, 1)
	in := params.Instructions[0]
	assert.Equal(t, "LAY", in.Side)
	assert.Equal(t, "LIMIT", in.OrderType)
	assert.Equal(t, "LAPSE", in.LimitOrder.PersistenceType)
	assert.Equal(t, 3.8, in.LimitOrder.Price)
	assert.Equal(t, "ref-1", params.CustomerRef)
}

func TestPlaceLayOrderRejected(t *testing.T) {
	stub, srv := newExchangeStub(t)
	stub.result["SportsAPING/v1.0/placeOrders"] = map[string]any{
		"status":    "FAILURE",
		"errorCode": "INSUFFICIENT_FUNDS",
		"instructionReports": []map[string]any{{
			"status":    "FAILURE",
			"errorCode": "ERROR_IN_ORDER",
		}},
	}
	c := newTestClient(srv, nil)
	c.SetToken("tok")

	res, err := c.PlaceLayOrder(context.Background(), domain.LayOrder{MarketID: "1.1", SelectionID: 1, Odds: 4, Stake: 2})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, domain.PlaceStatusFailure, res.Status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", res.ErrorCode)
}

func TestPlaceLayOrderInvalidNeverCallsExchange(t *testing.T) {
	stub, srv := newExchangeStub(t)
	c := newTestClient(srv, nil)
	c.SetToken("tok")

	_, err := c.PlaceLayOrder(context.Background(), domain.LayOrder{MarketID: "1.1", SelectionID: 1, Odds: 1.0, Stake: 2})
	require.ErrorIs(t, err, domain.ErrInvalidOrder)
	assert.Empty(t, stub.calls)
}

func TestAPIErrorMapping(t *testing.T) {
	stub, srv := newExchangeStub(t)
	stub.errs["SportsAPING/v1.0/listMarketBook"] = map[string]any{
		"code":    -32099,
		"message": "ANGX-0003",
		"data": map[string]any{
			"exceptionname": "APINGException",
			"APINGException": map[string]any{
				"errorCode":    "INVALID_SESSION_INFORMATION",
				"errorDetails": "session expired",
			},
		},
	}
	c := newTestClient(srv, nil)
	c.SetToken("tok")

	_, err := c.FetchBook(context.Background(), []string{"1.1"})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "session expired", apiErr.Details)
	assert.True(t, isUnauthorized(err))
}

func TestCancelAndCurrentOrders(t *testing.T) {
	stub, srv := newExchangeStub(t)
	stub.result["SportsAPING/v1.0/cancelOrders"] = map[string]any{
		"status":             "SUCCESS",
		"instructionReports": []map[string]any{{"status": "SUCCESS", "sizeCancelled": 1.5}},
	}
	stub.result["SportsAPING/v1.0/listCurrentOrders"] = map[string]any{
		"currentOrders": []map[string]any{{
			"betId": "9", "marketId": "1.1", "selectionId": 3, "side": "LAY",
			"priceSize": map[string]any{"price": 4.2, "size": 2}, "status": "EXECUTABLE", "sizeMatched": 0.5,
		}},
	}
	c := newTestClient(srv, nil)
	c.SetToken("tok")
	ctx := context.Background()

	_, err := c.CancelOrder(ctx, "", "9")
	require.ErrorIs(t, err, domain.ErrInvalidOrder)

	cr, err := c.CancelOrder(ctx, "1.1", "9")
	require.NoError(t, err)
	assert.Equal(t, domain.PlaceStatusSuccess, cr.Status)
	assert.Equal(t, 1.5, cr.SizeCancelled)

	orders, err := c.CurrentOrders(ctx, []string{"1.1"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderSideLay, orders[0].Side)
	assert.Equal(t, 4.2, orders[0].Price)
	assert.Equal(t, 0.5, orders[0].SizeMatched)
}

func TestAccountFunds(t *testing.T) {
	stub, srv := newExchangeStub(t)
	stub.result["AccountAPING/v1.0/getAccountFunds"] = map[string]any{
		"availableToBetBalance": 250.5,
		"exposure":              -12.4,
	}
	c := newTestClient(srv, nil)
	c.SetToken("tok")

	funds, err := c.AccountFunds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250.5, funds.Available)
	assert.Equal(t, -12.4, funds.Exposure)
}

type denyLimiter struct{ keys []string }

func (d *denyLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	d.keys = append(d.keys, key)
	return false, nil
}

func (d *denyLimiter) Wait(ctx context.Context, key string, _ int, _ time.Duration) error {
	d.keys = append(d.keys, key)
	<-ctx.Done()
	return ctx.Err()
}

func TestRateLimitedMarket(t *testing.T) {
	stub, srv := newExchangeStub(t)
	lim := &denyLimiter{}
	c := newTestClient(srv, lim)
	c.cfg.RateWait = 20 * time.Millisecond
	c.SetToken("tok")

	_, err := c.FetchBook(context.Background(), []string{"1.9"})
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, []string{"betfair:1.9"}, lim.keys)
	assert.Empty(t, stub.calls)
}
