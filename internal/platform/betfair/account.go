package betfair

import (
	"context"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// AccountFunds returns the available balance and current exposure.
func (c *Client) AccountFunds(ctx context.Context) (domain.AccountFunds, error) {
	var resp accountFundsResponse
	if err := c.call(ctx, c.cfg.AccountURL, accountMethod("getAccountFunds"), struct{}{}, &resp, ""); err != nil {
		return domain.AccountFunds{}, err
	}
	return domain.AccountFunds{
		Available: resp.AvailableToBetBalance,
		Exposure:  resp.Exposure,
	}, nil
}

var _ domain.AccountGateway = (*Client)(nil)
