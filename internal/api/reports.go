package api

import (
	"context"

	"github.com/rickgao/papertrade/internal/model"
)

// GetPnL returns the per-holding profit and loss report of userID.
func (c *Client) GetPnL(ctx context.Context, userID int64) (*model.PnLReport, error) {
	var report model.PnLReport
	if err := c.get(ctx, "/pnl", userParams(userID), &report); err != nil {
		return nil, err
	}
	return &report, nil
}
