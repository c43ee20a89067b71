package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/feed"
	"github.com/rickgao/papertrade/internal/model"
)

// Table is the journal table name.
const Table = "price_ticks"

// Schema creates the journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS price_ticks (
	observed_at TIMESTAMPTZ NOT NULL,
	symbol      TEXT        NOT NULL,
	price       NUMERIC     NOT NULL,
	change_24h  NUMERIC,
	volume      NUMERIC,
	source      TEXT        NOT NULL,
	version     BIGINT      NOT NULL
);
CREATE INDEX IF NOT EXISTS price_ticks_symbol_time ON price_ticks (symbol, observed_at);
`

var columns = []string{"observed_at", "symbol", "price", "change_24h", "volume", "source", "version"}

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Config configures the writer.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
	}
}

// Metrics tracks writer activity.
type Metrics struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Dropped int64 // Rows offered after Stop
}

// tickRow is one journal row.
type tickRow struct {
	ObservedAt time.Time
	Symbol     string
	Price      pgtype.Numeric
	Change24h  pgtype.Numeric
	Volume     pgtype.Numeric
	Source     string
	Version    int64
}

// Writer batches price snapshots into the journal table.
type Writer struct {
	cfg    Config
	db     DB
	logger *slog.Logger

	batch   []tickRow
	batchMu sync.Mutex
	stopped bool
	flushCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewWriter creates a new Writer.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}

	return &Writer{
		cfg:     cfg,
		db:      db,
		logger:  logger.With("component", "journal"),
		batch:   make([]tickRow, 0, cfg.BatchSize),
		flushCh: make(chan struct{}, 1),
	}
}

// EnsureSchema creates the journal table if it does not exist.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Start begins the flush loop.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop stops the flush loop and writes whatever is buffered.
func (w *Writer) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal stop timed out")
	}

	w.batchMu.Lock()
	w.stopped = true
	w.batchMu.Unlock()

	// Final flush runs on the caller's context; the writer's own is cancelled.
	w.flush(ctx)

	w.logger.Info("journal stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// RecordPrices buffers every quote of a prices feed snapshot.
func (w *Writer) RecordPrices(snap feed.Snapshot[[]model.Price]) {
	if !snap.Loaded || snap.Err != nil {
		return
	}
	w.add(transform(snap.Data, snap))
}

// RecordPrice buffers the quote of a single-symbol feed snapshot.
func (w *Writer) RecordPrice(snap feed.Snapshot[model.Price]) {
	if !snap.Loaded || snap.Err != nil {
		return
	}
	w.add(transform([]model.Price{snap.Data}, snap))
}

func (w *Writer) add(rows []tickRow) {
	if len(rows) == 0 {
		return
	}

	w.batchMu.Lock()
	if w.stopped {
		w.metrics.Dropped += int64(len(rows))
		w.batchMu.Unlock()
		return
	}
	w.batch = append(w.batch, rows...)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		// Flush on the loop goroutine so callers never wait on the database.
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
}

// transform converts quotes into journal rows stamped with the snapshot metadata.
func transform[T any](prices []model.Price, snap feed.Snapshot[T]) []tickRow {
	observedAt := snap.UpdatedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	rows := make([]tickRow, 0, len(prices))
	for _, p := range prices {
		if p.Symbol == "" {
			continue
		}
		rows = append(rows, tickRow{
			ObservedAt: observedAt.UTC(),
			Symbol:     strings.ToUpper(p.Symbol),
			Price:      toNumeric(p.Price),
			Change24h:  toNumeric(p.Change24h),
			Volume:     toNumeric(p.Volume),
			Source:     string(snap.Source),
			Version:    int64(snap.Version),
		})
	}
	return rows
}

// toNumeric converts a decimal without losing precision.
func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{
		Int:   d.Coefficient(),
		Exp:   d.Exponent(),
		Valid: true,
	}
}

// flushLoop flushes on the interval and whenever a batch fills.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		case <-w.flushCh:
			w.flush(w.ctx)
		}
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]tickRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	n, err := w.copyRows(ctx, batch)
	if err != nil {
		w.logger.Error("journal copy failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += n
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed price ticks",
		"count", n,
		"duration", time.Since(start),
	)
}

// copyRows writes rows with COPY.
func (w *Writer) copyRows(ctx context.Context, rows []tickRow) (int64, error) {
	src := make([][]any, len(rows))
	for i, r := range rows {
		src[i] = []any{r.ObservedAt, r.Symbol, r.Price, r.Change24h, r.Volume, r.Source, r.Version}
	}
	return w.db.CopyFrom(ctx, pgx.Identifier{Table}, columns, pgx.CopyFromRows(src))
}
