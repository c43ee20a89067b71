package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/papertrade/internal/model"
)

// ErrNoIdentity is returned by user-scoped fetches when nobody is signed in.
var ErrNoIdentity = errors.New("no signed-in user")

// PriceSource is the market data REST surface. *api.Client implements it.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (*model.Price, error)
	GetBulkPrices(ctx context.Context, symbols []string) ([]model.Price, error)
}

// TradingSource is the user-scoped REST surface. *api.Client implements it.
type TradingSource interface {
	GetWallet(ctx context.Context, userID int64) (*model.Portfolio, error)
	GetTransactions(ctx context.Context, userID int64) ([]model.Trade, error)
	GetOrders(ctx context.Context, userID int64) ([]model.Order, error)
}

// Identity exposes the signed-in user. *session.Provider implements it.
type Identity interface {
	CurrentUser() (*model.User, bool)
}

// Options are the timings and logger shared by the concrete feeds.
type Options struct {
	PollInterval time.Duration // Zero means DefaultPollInterval, negative disables polling
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

func (o Options) pollInterval() time.Duration {
	switch {
	case o.PollInterval == 0:
		return DefaultPollInterval
	case o.PollInterval < 0:
		return 0
	default:
		return o.PollInterval
	}
}

// IdentityGate opens only while someone is signed in.
func IdentityGate(id Identity) Gate {
	return func() bool {
		_, ok := id.CurrentUser()
		return ok
	}
}

// userID returns the signed-in user's id or ErrNoIdentity.
func userID(id Identity) (int64, error) {
	user, ok := id.CurrentUser()
	if !ok {
		return 0, ErrNoIdentity
	}
	return user.ID, nil
}

// NormalizeSymbols upper-cases and trims symbols, dropping blanks and
// duplicates. Order of first appearance is kept.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	var out []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// NewPrices creates the all-symbols price feed on crypto-prices.
func NewPrices(src PriceSource, sub Subscriber, symbols []string, opts Options) *Feed[[]model.Price] {
	symbols = NormalizeSymbols(symbols)
	return New(sub, Config[[]model.Price]{
		Name:    "prices",
		Channel: model.ChannelPrices,
		Fetch: func(ctx context.Context) ([]model.Price, error) {
			return src.GetBulkPrices(ctx, symbols)
		},
		PollInterval: opts.pollInterval(),
		FetchTimeout: opts.FetchTimeout,
		Logger:       opts.Logger,
	})
}

// NewPrice creates the single-symbol price feed on crypto-price-<SYMBOL>.
// An empty symbol yields a feed that never fetches or subscribes.
func NewPrice(src PriceSource, sub Subscriber, symbol string, opts Options) *Feed[model.Price] {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	var channel string
	if symbol != "" {
		channel = model.PriceChannel(symbol)
	}

	return New(sub, Config[model.Price]{
		Name:    "price-" + symbol,
		Channel: channel,
		Fetch: func(ctx context.Context) (model.Price, error) {
			p, err := src.GetPrice(ctx, symbol)
			if err != nil {
				return model.Price{}, err
			}
			return *p, nil
		},
		Decode: func(payload json.RawMessage) (model.Price, error) {
			var p model.Price
			if err := json.Unmarshal(payload, &p); err != nil {
				return p, err
			}
			if p.Symbol == "" {
				p.Symbol = symbol
			}
			return p, nil
		},
		Gate:         func() bool { return symbol != "" },
		PollInterval: opts.pollInterval(),
		FetchTimeout: opts.FetchTimeout,
		Logger:       opts.Logger,
	})
}

// NewPortfolio creates the wallet feed on the portfolio channel.
func NewPortfolio(src TradingSource, sub Subscriber, id Identity, opts Options) *Feed[model.Portfolio] {
	return New(sub, Config[model.Portfolio]{
		Name:    "portfolio",
		Channel: model.ChannelPortfolio,
		Fetch: func(ctx context.Context) (model.Portfolio, error) {
			uid, err := userID(id)
			if err != nil {
				return model.Portfolio{}, err
			}
			p, err := src.GetWallet(ctx, uid)
			if err != nil {
				return model.Portfolio{}, err
			}
			return *p, nil
		},
		Gate:         IdentityGate(id),
		PollInterval: opts.pollInterval(),
		FetchTimeout: opts.FetchTimeout,
		Logger:       opts.Logger,
	})
}

// NewTrades creates the executed-trades feed on the trades channel.
func NewTrades(src TradingSource, sub Subscriber, id Identity, opts Options) *Feed[[]model.Trade] {
	return New(sub, Config[[]model.Trade]{
		Name:    "trades",
		Channel: model.ChannelTrades,
		Fetch: func(ctx context.Context) ([]model.Trade, error) {
			uid, err := userID(id)
			if err != nil {
				return nil, err
			}
			return src.GetTransactions(ctx, uid)
		},
		Gate:         IdentityGate(id),
		PollInterval: opts.pollInterval(),
		FetchTimeout: opts.FetchTimeout,
		Logger:       opts.Logger,
	})
}

// NewOrders creates the orders feed on the orders channel.
func NewOrders(src TradingSource, sub Subscriber, id Identity, opts Options) *Feed[[]model.Order] {
	return New(sub, Config[[]model.Order]{
		Name:    "orders",
		Channel: model.ChannelOrders,
		Fetch: func(ctx context.Context) ([]model.Order, error) {
			uid, err := userID(id)
			if err != nil {
				return nil, err
			}
			return src.GetOrders(ctx, uid)
		},
		Gate:         IdentityGate(id),
		PollInterval: opts.pollInterval(),
		FetchTimeout: opts.FetchTimeout,
		Logger:       opts.Logger,
	})
}
