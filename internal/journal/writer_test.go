package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/feed"
	"github.com/rickgao/papertrade/internal/model"
)

// fakeDB records COPY rows.
type fakeDB struct {
	mu      sync.Mutex
	rows    [][]any
	tables  []string
	execs   []string
	copyErr error
}

func (d *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (d *fakeDB) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.copyErr != nil {
		return 0, d.copyErr
	}
	d.tables = append(d.tables, table.Sanitize())
	var n int64
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return n, err
		}
		d.rows = append(d.rows, values)
		n++
	}
	return n, src.Err()
}

func (d *fakeDB) rowCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rows)
}

func pricesSnapshot(version uint64, prices ...model.Price) feed.Snapshot[[]model.Price] {
	return feed.Snapshot[[]model.Price]{
		Data:      prices,
		Loaded:    true,
		Version:   version,
		Source:    feed.SourceRealtime,
		UpdatedAt: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestTransform(t *testing.T) {
	snap := pricesSnapshot(3,
		model.Price{Symbol: "btc", Price: decimal.RequireFromString("45000.125"), Change24h: decimal.RequireFromString("-1.2")},
		model.Price{Symbol: "", Price: decimal.NewFromInt(1)},
	)

	rows := transform(snap.Data, snap)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 (empty symbol skipped)", len(rows))
	}

	row := rows[0]
	if row.Symbol != "BTC" {
		t.Errorf("Symbol = %q, want BTC", row.Symbol)
	}
	if row.Source != "ws" || row.Version != 3 {
		t.Errorf("Source/Version = %q/%d, want ws/3", row.Source, row.Version)
	}
	if !row.ObservedAt.Equal(snap.UpdatedAt) {
		t.Errorf("ObservedAt = %v, want %v", row.ObservedAt, snap.UpdatedAt)
	}
	if row.Price.Int.String() != "45000125" || row.Price.Exp != -3 {
		t.Errorf("Price = %s e%d, want 45000125 e-3", row.Price.Int, row.Price.Exp)
	}
	if row.Change24h.Int.String() != "-12" || row.Change24h.Exp != -1 {
		t.Errorf("Change24h = %s e%d, want -12 e-1", row.Change24h.Int, row.Change24h.Exp)
	}
}

func TestWriter_SkipsFailedSnapshots(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(Config{BatchSize: 10, FlushInterval: time.Hour}, db, nil)

	w.RecordPrices(feed.Snapshot[[]model.Price]{Data: []model.Price{{Symbol: "BTC"}}})
	snap := pricesSnapshot(1, model.Price{Symbol: "BTC"})
	snap.Err = errors.New("fetch failed")
	w.RecordPrices(snap)

	w.batchMu.Lock()
	n := len(w.batch)
	w.batchMu.Unlock()
	if n != 0 {
		t.Errorf("buffered = %d, want 0", n)
	}
}

func TestWriter_FlushOnBatchSize(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(Config{BatchSize: 2, FlushInterval: time.Hour}, db, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	w.RecordPrices(pricesSnapshot(1,
		model.Price{Symbol: "BTC", Price: decimal.NewFromInt(45000)},
		model.Price{Symbol: "ETH", Price: decimal.NewFromInt(3000)},
	))

	deadline := time.Now().Add(time.Second)
	for db.rowCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if db.rowCount() != 2 {
		t.Fatalf("rows = %d, want 2", db.rowCount())
	}

	w.Stop(ctx)

	stats := w.Stats()
	if stats.Inserts != 2 || stats.Flushes != 1 {
		t.Errorf("stats = %+v, want 2 inserts in 1 flush", stats)
	}
	if db.tables[0] != `"price_ticks"` {
		t.Errorf("table = %s, want \"price_ticks\"", db.tables[0])
	}
}

func TestWriter_StopFlushesRemainder(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(Config{BatchSize: 100, FlushInterval: time.Hour}, db, nil)

	ctx := context.Background()
	w.Start(ctx)
	w.RecordPrice(feed.Snapshot[model.Price]{
		Data:    model.Price{Symbol: "SOL", Price: decimal.NewFromInt(100)},
		Loaded:  true,
		Version: 1,
		Source:  feed.SourceREST,
	})

	if db.rowCount() != 0 {
		t.Errorf("rows before Stop = %d, want 0", db.rowCount())
	}

	w.Stop(ctx)

	if db.rowCount() != 1 {
		t.Errorf("rows after Stop = %d, want 1", db.rowCount())
	}
	if got := db.rows[0][1]; got != "SOL" {
		t.Errorf("symbol column = %v, want SOL", got)
	}
}

func TestWriter_RecordAfterStopDropped(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(Config{BatchSize: 1, FlushInterval: time.Hour}, db, nil)

	ctx := context.Background()
	w.Start(ctx)
	w.Stop(ctx)

	w.RecordPrices(pricesSnapshot(1,
		model.Price{Symbol: "BTC", Price: decimal.NewFromInt(45000)},
		model.Price{Symbol: "ETH", Price: decimal.NewFromInt(2500)},
	))

	if db.rowCount() != 0 {
		t.Errorf("rows = %d, want 0", db.rowCount())
	}
	if got := w.Stats().Dropped; got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
	w.batchMu.Lock()
	buffered := len(w.batch)
	w.batchMu.Unlock()
	if buffered != 0 {
		t.Errorf("buffered = %d, want 0", buffered)
	}
}

func TestWriter_CopyErrorCounted(t *testing.T) {
	db := &fakeDB{copyErr: errors.New("connection refused")}
	w := NewWriter(Config{BatchSize: 100, FlushInterval: time.Hour}, db, nil)

	ctx := context.Background()
	w.Start(ctx)
	w.RecordPrices(pricesSnapshot(1, model.Price{Symbol: "BTC"}))
	w.Stop(ctx)

	if got := w.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}

func TestWriter_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(DefaultConfig(), db, nil)
	if err := w.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if len(db.execs) != 1 || db.execs[0] != Schema {
		t.Errorf("execs = %v", db.execs)
	}
}
