package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/api"
	"github.com/rickgao/papertrade/internal/model"
)

// orderArgs parses "SYMBOL QUANTITY".
func orderArgs(a *app, args []string) (api.OrderRequest, error) {
	if len(args) != 2 {
		return api.OrderRequest{}, errors.New("usage: SYMBOL QUANTITY")
	}
	qty, err := decimal.NewFromString(args[1])
	if err != nil {
		return api.OrderRequest{}, fmt.Errorf("invalid quantity %q: %w", args[1], err)
	}
	return api.OrderRequest{UserID: a.userID(), Symbol: args[0], Quantity: qty}, nil
}

func runBuy(ctx context.Context, a *app, args []string) error {
	req, err := orderArgs(a, args)
	if err != nil {
		return err
	}
	res, err := a.client.Buy(ctx, req)
	if err != nil {
		return err
	}
	return printOrderResult(a, res)
}

func runSell(ctx context.Context, a *app, args []string) error {
	req, err := orderArgs(a, args)
	if err != nil {
		return err
	}
	res, err := a.client.Sell(ctx, req)
	if err != nil {
		return err
	}
	return printOrderResult(a, res)
}

func printOrderResult(a *app, res *model.OrderResult) error {
	return a.out.value(res, func() {
		a.out.line("%s at %s", res.Message, res.Price.StringFixed(2))
	})
}

func runWallet(ctx context.Context, a *app, args []string) error {
	id := a.userID()
	wallet, err := a.client.GetWallet(ctx, id)
	if err != nil {
		return err
	}
	value, err := a.client.GetPortfolioValue(ctx, id)
	if err != nil {
		return err
	}

	out := struct {
		*model.Portfolio
		Value *model.PortfolioValue `json:"value"`
	}{wallet, value}

	return a.out.value(out, func() {
		printPortfolio(a.out, *wallet)
		a.out.line("net worth: %s", value.NetWorth.StringFixed(2))
	})
}

func printPortfolio(out *printer, p model.Portfolio) {
	out.line("cash: %s  holdings: %s", p.Balance.StringFixed(2), p.HoldingsValue().StringFixed(2))
	rows := make([][]string, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		rows = append(rows, []string{h.Symbol, h.Quantity.String(), h.Price.StringFixed(2), h.Value.StringFixed(2)})
	}
	out.table([]string{"SYMBOL", "QTY", "PRICE", "VALUE"}, rows)
}

func runTrades(ctx context.Context, a *app, args []string) error {
	id := a.userID()
	trades, err := a.client.GetTransactions(ctx, id)
	if err != nil {
		return err
	}
	active, err := a.client.GetActiveTrades(ctx, id)
	if err != nil {
		return err
	}

	out := struct {
		Trades       []model.Trade `json:"trades"`
		ActiveTrades int           `json:"active_trades"`
	}{trades, active}

	return a.out.value(out, func() {
		printTrades(a.out, trades)
		a.out.line("active trades: %d", active)
	})
}

func printTrades(out *printer, trades []model.Trade) {
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []string{
			t.Timestamp, string(t.Action), t.Symbol, t.Quantity.String(),
			t.Price.StringFixed(2), t.Total().StringFixed(2),
		})
	}
	out.table([]string{"TIME", "SIDE", "SYMBOL", "QTY", "PRICE", "TOTAL"}, rows)
}

func runOrders(ctx context.Context, a *app, args []string) error {
	orders, err := a.client.GetOrders(ctx, a.userID())
	if err != nil {
		return err
	}
	return a.out.value(orders, func() { printOrders(a.out, orders) })
}

func printOrders(out *printer, orders []model.Order) {
	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, []string{
			o.ID, o.CreatedAt, string(o.Side), o.Symbol, o.Type,
			o.Amount.String(), o.Price.StringFixed(2), o.Status,
		})
	}
	out.table([]string{"ID", "CREATED", "SIDE", "SYMBOL", "TYPE", "AMOUNT", "PRICE", "STATUS"}, rows)
}

func runPnL(ctx context.Context, a *app, args []string) error {
	report, err := a.client.GetPnL(ctx, a.userID())
	if err != nil {
		return err
	}
	return a.out.value(report, func() {
		rows := make([][]string, 0, len(report.Holdings))
		for _, h := range report.Holdings {
			rows = append(rows, []string{
				h.Symbol, h.Quantity.String(), h.AvgBuyPrice.StringFixed(2),
				h.CurrentPrice.StringFixed(2), h.CostBasis.StringFixed(2),
				h.CurrentValue.StringFixed(2), h.PnL.StringFixed(2),
			})
		}
		a.out.table([]string{"SYMBOL", "QTY", "AVG BUY", "PRICE", "COST", "VALUE", "PNL"}, rows)
		a.out.line("total pnl: %s", report.TotalPnL.StringFixed(2))
	})
}
