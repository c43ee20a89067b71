package api

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/papertrade/internal/model"
)

// ErrMissingSymbol is returned when a price call is made without a symbol.
var ErrMissingSymbol = errors.New("symbol is required")

// GetPrice returns the current quote for symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (*model.Price, error) {
	if symbol == "" {
		return nil, ErrMissingSymbol
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))

	var price model.Price
	if err := c.get(ctx, "/price", params, &price); err != nil {
		return nil, err
	}
	if price.Symbol == "" {
		price.Symbol = strings.ToUpper(symbol)
	}
	return &price, nil
}

// RefreshPrice asks the service to bypass its cache and returns the fresh quote.
func (c *Client) RefreshPrice(ctx context.Context, symbol string) (*model.Price, error) {
	if symbol == "" {
		return nil, ErrMissingSymbol
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))

	var price model.Price
	if err := c.get(ctx, "/refresh", params, &price); err != nil {
		return nil, err
	}
	if price.Symbol == "" {
		price.Symbol = strings.ToUpper(symbol)
	}
	return &price, nil
}

// GetBulkPrices returns quotes for several symbols in one call.
func (c *Client) GetBulkPrices(ctx context.Context, symbols []string) ([]model.Price, error) {
	params := url.Values{}
	if len(symbols) > 0 {
		upper := make([]string, len(symbols))
		for i, s := range symbols {
			upper[i] = strings.ToUpper(s)
		}
		params.Set("symbols", strings.Join(upper, ","))
	}

	var prices []model.Price
	if err := c.get(ctx, "/bulk-delta", params, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

// GetMarketOverview returns aggregate market figures.
func (c *Client) GetMarketOverview(ctx context.Context) (*model.MarketOverview, error) {
	var overview model.MarketOverview
	if err := c.get(ctx, "/market-overview", nil, &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}

// GetCoinHistory returns the price history of symbol between start and end.
func (c *Client) GetCoinHistory(ctx context.Context, symbol string, start, end time.Time) ([]model.HistoryPoint, error) {
	if symbol == "" {
		return nil, ErrMissingSymbol
	}

	params := rangeParams(start, end)
	params.Set("symbol", strings.ToUpper(symbol))

	var resp model.History
	if err := c.get(ctx, "/coin-history", params, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

// GetMarketHistory returns the aggregate market history between start and end.
func (c *Client) GetMarketHistory(ctx context.Context, start, end time.Time) ([]model.HistoryPoint, error) {
	var resp model.History
	if err := c.get(ctx, "/market-history", rangeParams(start, end), &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

// rangeParams encodes a time range as unix seconds.
func rangeParams(start, end time.Time) url.Values {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("start", strconv.FormatInt(start.Unix(), 10))
	}
	if !end.IsZero() {
		params.Set("end", strconv.FormatInt(end.Unix(), 10))
	}
	return params
}
