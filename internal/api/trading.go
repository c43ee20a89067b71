package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/model"
)

// ErrInvalidQuantity is returned for orders with a non-positive quantity.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// OrderRequest is a market buy or sell.
type OrderRequest struct {
	UserID   int64
	Symbol   string
	Quantity decimal.Decimal
}

// orderBody is the wire form of OrderRequest; quantity goes out as a JSON number.
type orderBody struct {
	UserID   int64       `json:"user_id"`
	Symbol   string      `json:"symbol"`
	Quantity json.Number `json:"quantity"`
}

func (r OrderRequest) body() (orderBody, error) {
	if r.Symbol == "" {
		return orderBody{}, ErrMissingSymbol
	}
	if !r.Quantity.IsPositive() {
		return orderBody{}, ErrInvalidQuantity
	}
	return orderBody{
		UserID:   r.UserID,
		Symbol:   strings.ToUpper(r.Symbol),
		Quantity: json.Number(r.Quantity.String()),
	}, nil
}

// activeTradesResponse is returned by /active-trades.
type activeTradesResponse struct {
	ActiveTrades int `json:"active_trades"`
}

func userParams(userID int64) url.Values {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(userID, 10))
	return params
}

// GetWallet returns the cash balance and holdings of userID.
func (c *Client) GetWallet(ctx context.Context, userID int64) (*model.Portfolio, error) {
	var portfolio model.Portfolio
	if err := c.get(ctx, "/wallet", userParams(userID), &portfolio); err != nil {
		return nil, err
	}
	return &portfolio, nil
}

// GetPortfolioValue returns the net worth summary of userID.
func (c *Client) GetPortfolioValue(ctx context.Context, userID int64) (*model.PortfolioValue, error) {
	var value model.PortfolioValue
	if err := c.get(ctx, "/portfolio-value", userParams(userID), &value); err != nil {
		return nil, err
	}
	return &value, nil
}

// Buy places a market buy order.
func (c *Client) Buy(ctx context.Context, req OrderRequest) (*model.OrderResult, error) {
	return c.placeOrder(ctx, "/buy", req)
}

// Sell places a market sell order.
func (c *Client) Sell(ctx context.Context, req OrderRequest) (*model.OrderResult, error) {
	return c.placeOrder(ctx, "/sell", req)
}

func (c *Client) placeOrder(ctx context.Context, path string, req OrderRequest) (*model.OrderResult, error) {
	body, err := req.body()
	if err != nil {
		return nil, fmt.Errorf("invalid order: %w", err)
	}

	var result model.OrderResult
	if err := c.post(ctx, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTransactions returns the executed trades of userID.
func (c *Client) GetTransactions(ctx context.Context, userID int64) ([]model.Trade, error) {
	var trades []model.Trade
	if err := c.get(ctx, "/transactions", userParams(userID), &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// GetActiveTrades returns the number of open positions of userID.
func (c *Client) GetActiveTrades(ctx context.Context, userID int64) (int, error) {
	var resp activeTradesResponse
	if err := c.get(ctx, "/active-trades", userParams(userID), &resp); err != nil {
		return 0, err
	}
	return resp.ActiveTrades, nil
}

// GetOrders returns the orders of userID.
func (c *Client) GetOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	var orders []model.Order
	if err := c.get(ctx, "/orders", userParams(userID), &orders); err != nil {
		return nil, err
	}
	return orders, nil
}
