package main

import (
	"context"
	"flag"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/papertrade/internal/config"
	"github.com/rickgao/papertrade/internal/connection"
	"github.com/rickgao/papertrade/internal/database"
	"github.com/rickgao/papertrade/internal/feed"
	"github.com/rickgao/papertrade/internal/journal"
	"github.com/rickgao/papertrade/internal/model"
	"github.com/rickgao/papertrade/internal/session"
	"github.com/rickgao/papertrade/internal/statusapi"
)

// shutdownTimeout bounds the final journal flush and status server shutdown.
const shutdownTimeout = 10 * time.Second

// managerConfig maps the realtime config onto the channel manager.
func managerConfig(cfg *config.ClientConfig) connection.ManagerConfig {
	return connection.ManagerConfig{
		WSURL:                cfg.API.WSURL,
		ReconnectBaseDelay:   cfg.Realtime.ReconnectBaseDelay,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		HandshakeTimeout:     cfg.API.Timeout,
		PingInterval:         cfg.Realtime.PingInterval,
		PingTimeout:          cfg.Realtime.PingTimeout,
		WriteTimeout:         cfg.Realtime.WriteTimeout,
		BufferSize:           cfg.Realtime.BufferSize,
	}
}

// runWatch connects the realtime channel, starts every feed and prints
// updates until interrupted.
func runWatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	symbols := fs.String("symbols", strings.Join(a.cfg.Feeds.Symbols, ","), "comma-separated symbols to follow")
	status := fs.Bool("status", a.cfg.Status.Enabled, "serve the local status API")
	record := fs.Bool("journal", a.cfg.Journal.Enabled, "record price ticks to PostgreSQL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	watched := splitSymbols(*symbols)

	mgr := connection.NewManager(managerConfig(a.cfg), a.logger)
	defer mgr.Disconnect()
	mgr.OnStateChange(func(s connection.State) {
		a.logger.Info("realtime state changed", "state", s.String())
	})

	sess := session.NewProvider(a.client, mgr, a.logger)

	// The writer is stopped after the feeds below are closed.
	var writer *journal.Writer
	if *record {
		pool, err := database.Connect(ctx, a.cfg.Journal.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		writer = journal.NewWriter(journal.Config{
			BatchSize:     a.cfg.Journal.BatchSize,
			FlushInterval: a.cfg.Journal.FlushInterval,
		}, pool, a.logger)
		if err := writer.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := writer.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := writer.Stop(stopCtx); err != nil {
				a.logger.Warn("journal stop", "error", err)
			}
			m := writer.Stats()
			a.logger.Info("journal stopped", "inserts", m.Inserts, "flushes", m.Flushes, "errors", m.Errors, "dropped", m.Dropped)
		}()
	}

	opts := feed.Options{
		PollInterval: a.cfg.Feeds.PollInterval,
		FetchTimeout: a.cfg.Feeds.FetchTimeout,
		Logger:       a.logger,
	}
	prices := feed.NewPrices(a.client, mgr, watched, opts)
	defer prices.Close()

	perSymbol := make([]*feed.Feed[model.Price], 0, len(watched))
	for _, sym := range watched {
		f := feed.NewPrice(a.client, mgr, sym, opts)
		defer f.Close()
		perSymbol = append(perSymbol, f)
	}

	portfolio := feed.NewPortfolio(a.client, mgr, sess, opts)
	defer portfolio.Close()
	trades := feed.NewTrades(a.client, mgr, sess, opts)
	defer trades.Close()
	orders := feed.NewOrders(a.client, mgr, sess, opts)
	defer orders.Close()

	var mu sync.Mutex
	show := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	}

	prices.OnUpdate(func(snap feed.Snapshot[[]model.Price]) {
		if writer != nil {
			writer.RecordPrices(snap)
		}
		if snap.Err == nil {
			show(func() { printPrices(a.out, snap.Data) })
		}
	})
	for _, f := range perSymbol {
		f.OnUpdate(func(snap feed.Snapshot[model.Price]) {
			if writer != nil {
				writer.RecordPrice(snap)
			}
			if snap.Err == nil {
				show(func() {
					p := snap.Data
					a.out.line("%s %s (%s%%) via %s", p.Symbol, p.Price.StringFixed(2), p.Change24h.StringFixed(2), snap.Source)
				})
			}
		})
	}
	portfolio.OnUpdate(func(snap feed.Snapshot[model.Portfolio]) {
		if snap.Err == nil {
			show(func() { printPortfolio(a.out, snap.Data) })
		}
	})
	trades.OnUpdate(func(snap feed.Snapshot[[]model.Trade]) {
		if snap.Err == nil {
			show(func() { printTrades(a.out, snap.Data) })
		}
	})
	orders.OnUpdate(func(snap feed.Snapshot[[]model.Order]) {
		if snap.Err == nil {
			show(func() { printOrders(a.out, snap.Data) })
		}
	})

	market := []func(context.Context) error{prices.Start}
	for _, f := range perSymbol {
		market = append(market, f.Start)
	}
	user := []func(context.Context) error{portfolio.Start, trades.Start, orders.Start}
	if err := startFeeds(ctx, sess.Restore, market, user); err != nil {
		return err
	}
	if _, ok := sess.CurrentUser(); !ok {
		a.logger.Warn("not signed in: portfolio, trades and orders stay empty; run login and restart watch")
	}

	if *status {
		srv := statusapi.New(a.cfg.Status.Addr, mgr, sess, a.logger)
		srv.Register(prices.Name(), statusapi.FeedView(prices))
		for _, f := range perSymbol {
			srv.Register(f.Name(), statusapi.FeedView(f))
		}
		srv.Register(portfolio.Name(), statusapi.FeedView(portfolio))
		srv.Register(trades.Name(), statusapi.FeedView(trades))
		srv.Register(orders.Name(), statusapi.FeedView(orders))
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("status api shutdown", "error", err)
			}
		}()
	}

	a.logger.Info("watching", "symbols", watched)
	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}

// startFeeds runs restore alongside the market feed starts, then starts the
// user feeds so their identity gate sees the restored session. Starts take
// ctx directly: the group context ends when Wait returns.
func startFeeds(ctx context.Context, restore func(context.Context) error, market, user []func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return restore(gctx) })
	for _, start := range market {
		start := start
		g.Go(func() error { return start(ctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, start := range user {
		if err := start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// splitSymbols parses a comma-separated list without duplicates; a channel
// holds a single callback.
func splitSymbols(s string) []string {
	return feed.NormalizeSymbols(strings.Split(s, ","))
}
