package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"github.com/rickgao/papertrade/internal/model"
)

func runPrice(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("price", flag.ContinueOnError)
	refresh := fs.Bool("refresh", false, "force the service to refresh the quote")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		prices []model.Price
		err    error
	)
	switch {
	case fs.NArg() == 0:
		prices, err = a.client.GetBulkPrices(ctx, a.cfg.Feeds.Symbols)
	case fs.NArg() > 1:
		prices, err = a.client.GetBulkPrices(ctx, fs.Args())
	default:
		var p *model.Price
		if *refresh {
			p, err = a.client.RefreshPrice(ctx, fs.Arg(0))
		} else {
			p, err = a.client.GetPrice(ctx, fs.Arg(0))
		}
		if p != nil {
			if p.Symbol == "" {
				p.Symbol = strings.ToUpper(fs.Arg(0))
			}
			prices = []model.Price{*p}
		}
	}
	if err != nil {
		return err
	}

	return a.out.value(prices, func() { printPrices(a.out, prices) })
}

func printPrices(out *printer, prices []model.Price) {
	rows := make([][]string, 0, len(prices))
	for _, p := range prices {
		rows = append(rows, []string{
			p.Symbol,
			p.Price.StringFixed(2),
			p.Change24h.StringFixed(2) + "%",
			p.Volume.StringFixed(0),
		})
	}
	out.table([]string{"SYMBOL", "PRICE", "24H", "VOLUME"}, rows)
}

func runOverview(ctx context.Context, a *app, args []string) error {
	o, err := a.client.GetMarketOverview(ctx)
	if err != nil {
		return err
	}
	return a.out.value(o, func() {
		a.out.line("market cap:    %s", o.MarketCapUSD.StringFixed(0))
		a.out.line("24h volume:    %s", o.Volume24hUSD.StringFixed(0))
		a.out.line("liquidity:     %s", o.LiquidityUSD.StringFixed(0))
		a.out.line("BTC dominance: %s%%", o.BTCDominance.StringFixed(2))
	})
}

// runHistory prints coin history for a symbol, or market history without one.
func runHistory(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	since := fs.Duration("since", 24*time.Hour, "how far back to look")
	if err := fs.Parse(args); err != nil {
		return err
	}

	end := time.Now()
	start := end.Add(-*since)

	var (
		points []model.HistoryPoint
		err    error
	)
	if fs.NArg() > 0 {
		points, err = a.client.GetCoinHistory(ctx, fs.Arg(0), start, end)
	} else {
		points, err = a.client.GetMarketHistory(ctx, start, end)
	}
	if err != nil {
		return err
	}

	return a.out.value(points, func() {
		rows := make([][]string, 0, len(points))
		for _, p := range points {
			rows = append(rows, []string{
				time.Unix(p.Timestamp, 0).UTC().Format(time.RFC3339),
				p.Price.StringFixed(2),
				p.Volume.StringFixed(0),
			})
		}
		a.out.table([]string{"TIME", "PRICE", "VOLUME"}, rows)
	})
}
