package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/papertrade/internal/connection"
)

// Errors
var (
	ErrGateClosed     = errors.New("feed precondition not met")
	ErrAlreadyStarted = errors.New("feed already started")
	ErrClosed         = errors.New("feed closed")
)

// Default timings.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// Source identifies where an applied value came from.
type Source string

const (
	SourceREST     Source = "rest"
	SourcePoll     Source = "poll"
	SourceRealtime Source = "ws"
)

// Snapshot is the current state of a feed.
type Snapshot[T any] struct {
	Data      T         `json:"data"`
	Loaded    bool      `json:"loaded"`     // At least one value has been applied
	IsLoading bool      `json:"is_loading"` // Initial fetch in flight
	Err       error     `json:"-"`
	Version   uint64    `json:"version"`
	Source    Source    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Subscriber registers channel callbacks. connection.Manager implements it.
type Subscriber interface {
	Subscribe(channel string, cb connection.Callback)
	Unsubscribe(channel string)
}

// Gate reports whether the feed may fetch right now.
type Gate func() bool

// Config describes one feed.
type Config[T any] struct {
	Name         string
	Channel      string // Empty means no realtime subscription
	Fetch        func(ctx context.Context) (T, error)
	Decode       func(payload json.RawMessage) (T, error) // Nil decodes JSON into T
	Gate         Gate                                      // Nil is always open
	PollInterval time.Duration                             // Zero disables polling
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// Feed keeps a Snapshot of T current.
type Feed[T any] struct {
	cfg    Config[T]
	sub    Subscriber
	logger *slog.Logger

	mu       sync.RWMutex
	snap     Snapshot[T]
	onUpdate func(Snapshot[T])
	started  bool
	closed   bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a feed. sub may be nil for a REST-only feed.
func New[T any](sub Subscriber, cfg Config[T]) *Feed[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Decode == nil {
		cfg.Decode = decodeJSON[T]
	}

	return &Feed[T]{
		cfg:    cfg,
		sub:    sub,
		logger: logger.With("feed", cfg.Name),
	}
}

func decodeJSON[T any](payload json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Name returns the feed name.
func (f *Feed[T]) Name() string {
	return f.cfg.Name
}

// Channel returns the realtime channel the feed listens on.
func (f *Feed[T]) Channel() string {
	return f.cfg.Channel
}

// OnUpdate sets a hook invoked after every applied value.
func (f *Feed[T]) OnUpdate(fn func(Snapshot[T])) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onUpdate = fn
}

// Snapshot returns the current state.
func (f *Feed[T]) Snapshot() Snapshot[T] {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snap
}

// Start subscribes to the channel, kicks off the initial fetch if the gate
// is open and starts polling. It does not block on the fetch.
func (f *Feed[T]) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.started {
		f.mu.Unlock()
		return ErrAlreadyStarted
	}
	f.started = true
	f.ctx, f.cancel = context.WithCancel(ctx)

	open := f.gateOpen()
	if open {
		f.snap.IsLoading = true
	}
	f.mu.Unlock()

	if f.cfg.Channel != "" && f.sub != nil {
		f.sub.Subscribe(f.cfg.Channel, f.handlePayload)
	}

	if open {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			err := f.fetch(f.ctx, SourceREST)
			f.finishLoading(err)
		}()
	}

	if f.cfg.PollInterval > 0 && f.cfg.Fetch != nil {
		f.wg.Add(1)
		go f.pollLoop()
	}

	f.logger.Debug("feed started", "channel", f.cfg.Channel, "gated", !open)
	return nil
}

// Refetch re-runs the REST fetch now and applies the result. A failure is
// recorded in the snapshot and returned; the last good data is kept.
func (f *Feed[T]) Refetch(ctx context.Context) error {
	if !f.gateOpen() {
		return ErrGateClosed
	}
	return f.fetch(ctx, SourceREST)
}

// Close unsubscribes from the channel and stops polling. Safe to call repeatedly.
func (f *Feed[T]) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		started := f.started
		cancel := f.cancel
		f.mu.Unlock()

		if !started {
			return
		}

		cancel()
		if f.cfg.Channel != "" && f.sub != nil {
			f.sub.Unsubscribe(f.cfg.Channel)
		}
		f.wg.Wait()

		f.logger.Debug("feed closed")
	})
}

func (f *Feed[T]) gateOpen() bool {
	return f.cfg.Gate == nil || f.cfg.Gate()
}

// fetch runs the fetch function and applies its result. Poll failures leave
// the snapshot untouched; other failures are recorded in Err.
func (f *Feed[T]) fetch(ctx context.Context, source Source) error {
	if f.cfg.Fetch == nil {
		return nil
	}
	if !f.gateOpen() {
		return ErrGateClosed
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	data, err := f.cfg.Fetch(fetchCtx)
	if err != nil {
		err = fmt.Errorf("fetch %s: %w", f.cfg.Name, err)
		if source == SourcePoll {
			f.logger.Warn("poll failed", "error", err)
			return err
		}
		f.recordError(err)
		return err
	}

	f.apply(data, source)
	return nil
}

func (f *Feed[T]) finishLoading(err error) {
	f.mu.Lock()
	f.snap.IsLoading = false
	f.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		f.logger.Warn("initial fetch failed", "error", err)
	}
}

func (f *Feed[T]) recordError(err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.snap.Err = err
	snap := f.snap
	hook := f.onUpdate
	f.mu.Unlock()

	if hook != nil {
		hook(snap)
	}
}

// apply replaces the snapshot data wholesale.
func (f *Feed[T]) apply(data T, source Source) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.snap.Data = data
	f.snap.Loaded = true
	f.snap.Err = nil
	f.snap.Version++
	f.snap.Source = source
	f.snap.UpdatedAt = time.Now()
	snap := f.snap
	hook := f.onUpdate
	f.mu.Unlock()

	if hook != nil {
		hook(snap)
	}
}

// handlePayload is the channel callback.
func (f *Feed[T]) handlePayload(payload json.RawMessage) {
	data, err := f.cfg.Decode(payload)
	if err != nil {
		f.logger.Warn("dropping undecodable payload",
			"channel", f.cfg.Channel,
			"error", err,
		)
		return
	}
	f.apply(data, SourceRealtime)
}

// pollLoop re-runs the fetch every PollInterval.
func (f *Feed[T]) pollLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.fetch(f.ctx, SourcePoll)
		}
	}
}
