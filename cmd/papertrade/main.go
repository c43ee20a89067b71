// papertrade is a command-line client for the paper trading service.
//
// Usage:
//
//	papertrade [-config path] [-json] <command> [flags] [args]
//
// Commands:
//
//	login, register, logout, me, profile    account and session
//	price, overview, history                market data
//	buy, sell, wallet, trades, orders, pnl  trading
//	watch                                   live feeds until interrupted
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rickgao/papertrade/internal/api"
	"github.com/rickgao/papertrade/internal/config"
	"github.com/rickgao/papertrade/internal/session"
	"github.com/rickgao/papertrade/internal/storage"
	"github.com/rickgao/papertrade/internal/version"
)

// command is one subcommand.
type command struct {
	summary string
	auth    bool // Needs a restored session
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":    {summary: "sign in and store the session token", run: runLogin},
	"register": {summary: "create an account and sign in", run: runRegister},
	"logout":   {summary: "sign out and forget the stored token", run: runLogout},
	"me":       {summary: "show the signed-in user", auth: true, run: runMe},
	"profile":  {summary: "show or update the profile", auth: true, run: runProfile},
	"price":    {summary: "show the price of a symbol", run: runPrice},
	"overview": {summary: "show market totals", run: runOverview},
	"history":  {summary: "show price history of a symbol or the market", run: runHistory},
	"buy":      {summary: "buy a quantity of a symbol", auth: true, run: runBuy},
	"sell":     {summary: "sell a quantity of a symbol", auth: true, run: runSell},
	"wallet":   {summary: "show balance, holdings and net worth", auth: true, run: runWallet},
	"trades":   {summary: "show executed trades", auth: true, run: runTrades},
	"orders":   {summary: "show orders", auth: true, run: runOrders},
	"pnl":      {summary: "show profit and loss per holding", auth: true, run: runPnL},
	"watch":    {summary: "stream prices, portfolio, trades and orders", run: runWatch},
	"version":  {summary: "print version information", run: runVersion},
}

// app holds what every command needs.
type app struct {
	cfg     *config.ClientConfig
	logger  *slog.Logger
	store   storage.Store
	client  *api.Client
	session *session.Provider
	out     *printer
}

func main() {
	configPath := flag.String("config", "configs/papertrade.yaml", "path to config file")
	jsonOut := flag.Bool("json", false, "print results as JSON")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	name := flag.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, *jsonOut)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.close()

	if cmd.auth {
		if err := a.requireSession(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if err := cmd.run(ctx, a, flag.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: papertrade [-config path] [-json] <command> [flags] [args]\n\ncommands:\n")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", name, commands[name].summary)
	}

	fmt.Fprintf(os.Stderr, "\nflags:\n")
	flag.PrintDefaults()
}

// newLogger builds the slog handler selected by the log config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newApp opens the token store and builds the REST client and session.
// Realtime is not connected here; only watch does that.
func newApp(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger, jsonOut bool) (*app, error) {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}

	client := api.NewClient(cfg.API.RestURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithTokenStore(store),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		client:  client,
		session: session.NewProvider(client, offline{}, logger),
		out:     newPrinter(os.Stdout, jsonOut),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close token store", "error", err)
	}
}

// requireSession restores the stored session and fails when nobody is signed in.
func (a *app) requireSession(ctx context.Context) error {
	if err := a.session.Restore(ctx); err != nil {
		return err
	}
	if _, ok := a.session.CurrentUser(); !ok {
		return errors.New("not signed in: run papertrade login")
	}
	return nil
}

// userID returns the signed-in user's id. Only valid after requireSession.
func (a *app) userID() int64 {
	user, _ := a.session.CurrentUser()
	return user.ID
}

// offline stands in for the realtime connection in one-shot commands.
type offline struct{}

func (offline) Connect(string) {}
func (offline) Disconnect()    {}

func runVersion(ctx context.Context, a *app, args []string) error {
	info := struct {
		Version   string `json:"version"`
		UserAgent string `json:"user_agent"`
	}{version.String(), version.UserAgent()}
	return a.out.value(info, func() { a.out.line("papertrade %s", info.Version) })
}
