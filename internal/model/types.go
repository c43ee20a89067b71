package model

import "github.com/shopspring/decimal"

// -----------------------------------------------------------------------------
// Identity
// -----------------------------------------------------------------------------

// User is the identity behind a bearer token, as returned by GET /me.
type User struct {
	ID           int64            `json:"id"`
	Email        string           `json:"email"`
	FirstName    string           `json:"first_name"`
	LastName     string           `json:"last_name"`
	Phone        string           `json:"phone,omitempty"`
	Bio          string           `json:"bio,omitempty"`
	CreatedAt    string           `json:"created_at,omitempty"`
	Balance      *decimal.Decimal `json:"balance,omitempty"`
	TotalTrades  int              `json:"total_trades,omitempty"`
	ActiveTrades int              `json:"active_trades,omitempty"`
	TotalPnL     *decimal.Decimal `json:"total_pnl,omitempty"`
}

// DisplayName returns "First Last", falling back to the email address.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Email
	}
}

// ProfileUpdate carries the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Bio       *string `json:"bio,omitempty"`
}

// Registration is the sign-up form.
type Registration struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone"`
	Bio       string `json:"bio"`
}

// -----------------------------------------------------------------------------
// Market data
// -----------------------------------------------------------------------------

// Price is a single symbol quote (GET /price and crypto-price-* channels).
type Price struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"`
	Volume    decimal.Decimal `json:"volume"`
	Source    string          `json:"source,omitempty"`
}

// MarketOverview is the aggregate market view (GET /market-overview).
type MarketOverview struct {
	MarketCapUSD decimal.Decimal `json:"market_cap_usd"`
	Volume24hUSD decimal.Decimal `json:"volume_24h_usd"`
	LiquidityUSD decimal.Decimal `json:"liquidity_usd"`
	BTCDominance decimal.Decimal `json:"btc_dominance"`
}

// HistoryPoint is one sample of a price or market history series.
type HistoryPoint struct {
	Timestamp int64           `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
}

// History wraps the coin-history and market-history responses.
type History struct {
	History []HistoryPoint `json:"history"`
}

// -----------------------------------------------------------------------------
// Portfolio and trading
// -----------------------------------------------------------------------------

// Holding is one position in the wallet.
type Holding struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
}

// Portfolio is the wallet snapshot (GET /wallet and the portfolio channel).
type Portfolio struct {
	Balance  decimal.Decimal `json:"balance"`
	Holdings []Holding       `json:"holdings"`
}

// HoldingsValue sums the value of all holdings.
func (p Portfolio) HoldingsValue() decimal.Decimal {
	total := decimal.Zero
	for _, h := range p.Holdings {
		total = total.Add(h.Value)
	}
	return total
}

// PortfolioValue is the net worth summary (GET /portfolio-value).
type PortfolioValue struct {
	Balance       decimal.Decimal `json:"balance"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	NetWorth      decimal.Decimal `json:"net_worth"`
}

// Side is an order or trade direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is buy or sell.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Trade is an executed transaction (GET /transactions and the trades channel).
type Trade struct {
	ID        string          `json:"id,omitempty"`
	Symbol    string          `json:"symbol"`
	Action    Side            `json:"action"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp string          `json:"timestamp"`
}

// Total returns quantity × price.
func (t Trade) Total() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// Order is a placed order (GET /orders and the orders channel).
type Order struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Type      string          `json:"type"`   // "market" or "limit"
	Status    string          `json:"status"` // "pending", "filled", "cancelled"
	CreatedAt string          `json:"createdAt"`
	FilledAt  string          `json:"filledAt,omitempty"`
}

// OrderResult is the response to POST /buy and POST /sell.
type OrderResult struct {
	Message string          `json:"message"`
	Price   decimal.Decimal `json:"price"`
}

// -----------------------------------------------------------------------------
// Reports
// -----------------------------------------------------------------------------

// HoldingPnL is the profit and loss of a single holding.
type HoldingPnL struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgBuyPrice  decimal.Decimal `json:"avg_buy_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	CurrentValue decimal.Decimal `json:"current_value"`
	PnL          decimal.Decimal `json:"pnl"`
}

// PnLReport is the response to GET /pnl.
type PnLReport struct {
	Holdings []HoldingPnL    `json:"holdings_pnl"`
	TotalPnL decimal.Decimal `json:"total_pnl"`
}
