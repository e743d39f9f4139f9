package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/portfolio-tracker/internal/dispatch"
	"github.com/rickgao/portfolio-tracker/internal/model"
)

// QuoteSource fetches a single quote. Implemented by *api.Client.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*model.Quote, error)
}

// Enqueuer accepts outbound work. Implemented by *dispatch.Dispatcher.
type Enqueuer interface {
	Enqueue(op dispatch.Operation)
	Submit(op dispatch.Operation, done func(error))
}

// Config holds watch registry configuration.
type Config struct {
	PollInterval time.Duration // Re-poll interval per symbol (default: 15s)
	MaxSymbols   int           // Ceiling on concurrently watched symbols (default: 25)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 15 * time.Second,
		MaxSymbols:   25,
	}
}

// watchEntry is the per-symbol state.
type watchEntry struct {
	fn      PriceFunc
	last    decimal.Decimal
	hasLast bool
	cancel  context.CancelFunc // stops the poll schedule
}

// Stats is a snapshot of registry counters.
type Stats struct {
	Watched   int
	Polls     int64 // periodic fetches enqueued
	Fetches   int64 // fetches that reached the quote source
	Notified  int64 // callbacks fired
	Unchanged int64 // fetches that returned the last known price
}

// Registry tracks watched symbols, their callbacks and their poll schedules.
type Registry struct {
	cfg      Config
	quotes   QuoteSource
	enqueuer Enqueuer
	logger   *slog.Logger

	// Lock order: deliverMu before mu.
	deliverMu sync.Mutex
	mu        sync.Mutex
	symbols   map[string]*watchEntry
	closed    bool

	polls     atomic.Int64
	fetches   atomic.Int64
	notified  atomic.Int64
	unchanged atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a new Registry. Fetches are submitted to enqueuer and
// served by quotes.
func NewRegistry(cfg Config, quotes QuoteSource, enqueuer Enqueuer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxSymbols <= 0 {
		cfg.MaxSymbols = def.MaxSymbols
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:      cfg,
		quotes:   quotes,
		enqueuer: enqueuer,
		logger:   logger,
		symbols:  make(map[string]*watchEntry),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Watch starts tracking symbol and routes its price changes to fn.
//
// Watching a symbol that is already watched replaces its callback and
// triggers a fresh fetch without counting against MaxSymbols.
func (r *Registry) Watch(symbol string, fn PriceFunc) error {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return ErrInvalidSymbol
	}
	if fn == nil {
		return ErrNilCallback
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	e, ok := r.symbols[symbol]
	if !ok {
		if len(r.symbols) >= r.cfg.MaxSymbols {
			return fmt.Errorf("%w (%d)", ErrCapacityExceeded, r.cfg.MaxSymbols)
		}
		e = &watchEntry{}
		r.symbols[symbol] = e
	}
	e.fn = fn

	r.enqueuer.Enqueue(r.fetchOp(symbol))

	if e.cancel == nil {
		ctx, cancel := context.WithCancel(r.ctx)
		e.cancel = cancel
		r.wg.Add(1)
		go r.schedule(ctx, symbol)
	}

	r.logger.Debug("watching symbol",
		"symbol", symbol,
		"watched", len(r.symbols),
		"rewatch", ok,
	)
	return nil
}

// Unwatch stops tracking symbol. It drops the callback and the last price and
// cancels the poll schedule. Unknown symbols are ignored.
func (r *Registry) Unwatch(symbol string) {
	symbol = model.NormalizeSymbol(symbol)

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.symbols[symbol]
	if !ok {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(r.symbols, symbol)

	r.logger.Debug("unwatched symbol",
		"symbol", symbol,
		"watched", len(r.symbols),
	)
}

// GetQuote fetches one quote through the dispatcher, bypassing the watch
// machinery. It blocks until the fetch terminates or ctx is done.
func (r *Registry) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}

	type result struct {
		quote *model.Quote
		err   error
	}
	ch := make(chan result, 1)

	var quote *model.Quote
	op := func(_ context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		q, err := r.quotes.GetQuote(ctx, symbol)
		if err != nil {
			return err
		}
		quote = q
		return nil
	}
	r.enqueuer.Submit(op, func(err error) {
		if err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{quote: quote}
	})

	select {
	case res := <-ch:
		return res.quote, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LastPrice returns the last price delivered for symbol.
func (r *Registry) LastPrice(symbol string) (decimal.Decimal, bool) {
	symbol = model.NormalizeSymbol(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.symbols[symbol]
	if !ok || !e.hasLast {
		return decimal.Decimal{}, false
	}
	return e.last, true
}

// IsWatched reports whether symbol is currently watched.
func (r *Registry) IsWatched(symbol string) bool {
	symbol = model.NormalizeSymbol(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.symbols[symbol]
	return ok
}

// Symbols returns the watched symbols in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of watched symbols.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.symbols)
}

// Stats returns current counters.
func (r *Registry) Stats() Stats {
	return Stats{
		Watched:   r.Len(),
		Polls:     r.polls.Load(),
		Fetches:   r.fetches.Load(),
		Notified:  r.notified.Load(),
		Unchanged: r.unchanged.Load(),
	}
}

// Close cancels every poll schedule and waits for them to exit. Watch fails
// with ErrClosed afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("watch registry closed")
}

// fetchOp builds the dispatcher operation that fetches symbol and delivers
// the result.
func (r *Registry) fetchOp(symbol string) dispatch.Operation {
	return func(ctx context.Context) error {
		// Unwatched while queued; no point spending a request.
		if !r.IsWatched(symbol) {
			return nil
		}

		r.fetches.Add(1)
		q, err := r.quotes.GetQuote(ctx, symbol)
		if err != nil {
			r.logger.Debug("fetch failed", "symbol", symbol, "err", err)
			return err
		}

		if r.deliver(symbol, q) {
			r.notified.Add(1)
		} else {
			r.unchanged.Add(1)
		}
		return nil
	}
}
