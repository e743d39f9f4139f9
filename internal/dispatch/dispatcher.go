package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/portfolio-tracker/internal/queue"
)

// Operation is a unit of outbound work. It receives the dispatcher's context.
type Operation func(ctx context.Context) error

// DropFunc is called when an operation terminates with an error.
type DropFunc func(err error, attempts int)

// RetryFunc is called before the dispatcher sleeps ahead of a retry.
type RetryFunc func(attempt int, delay time.Duration, err error)

// Config holds dispatcher configuration.
type Config struct {
	MaxRequestsPerSecond int           // Ceiling on outbound request rate (default: 20)
	MinDelay             time.Duration // Floor on the wait between dispatches (default: 100ms)
	MaxRetries           int           // Retries per operation before it is dropped (default: 3)
	Backoff              BackoffPolicy // Retry spacing when the server gives no Retry-After
	InitialCapacity      int           // Initial queue capacity (default: 64)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRequestsPerSecond: 20,
		MinDelay:             100 * time.Millisecond,
		MaxRetries:           3,
		Backoff:              DefaultBackoff(),
		InitialCapacity:      64,
	}
}

// TargetInterval is the steady spacing between dispatches.
func (c Config) TargetInterval() time.Duration {
	if c.MaxRequestsPerSecond <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.MaxRequestsPerSecond)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDropHandler sets the hook called for every terminally failed operation.
func WithDropHandler(fn DropFunc) Option {
	return func(d *Dispatcher) {
		d.onDrop = fn
	}
}

// WithRetryHandler sets the hook called before each retry.
func WithRetryHandler(fn RetryFunc) Option {
	return func(d *Dispatcher) {
		d.onRetry = fn
	}
}

// entry is a queued operation and its retry state.
type entry struct {
	op         Operation
	retryCount int
	done       func(error)
}

func (e *entry) finish(err error) {
	if e.done != nil {
		e.done(err)
	}
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Enqueued   int64 `json:"enqueued"`
	Dispatched int64 `json:"dispatched"`
	Succeeded  int64 `json:"succeeded"`
	Retried    int64 `json:"retried"`
	Dropped    int64 `json:"dropped"`
	Queued     int   `json:"queued"`
	Running    bool  `json:"running"` // worker goroutine alive
}

// Dispatcher drains queued operations on a single worker at a bounded rate.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger
	queue  *queue.Deque[*entry]

	onDrop  DropFunc
	onRetry RetryFunc

	// wake nudges an idle worker; capacity 1 so Enqueue never blocks.
	wake    chan struct{}
	running atomic.Bool
	stopped atomic.Bool

	// Only touched by the worker goroutine.
	lastDispatch time.Time

	enqueued   atomic.Int64
	dispatched atomic.Int64
	succeeded  atomic.Int64
	retried    atomic.Int64
	dropped    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Dispatcher. Operations may be enqueued before Start.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRequestsPerSecond <= 0 {
		cfg.MaxRequestsPerSecond = DefaultConfig().MaxRequestsPerSecond
	}
	if cfg.MinDelay < 0 {
		cfg.MinDelay = 0
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialCapacity <= 0 {
		cfg.InitialCapacity = DefaultConfig().InitialCapacity
	}

	d := &Dispatcher{
		cfg:    cfg,
		logger: logger,
		queue:  queue.New[*entry](cfg.InitialCapacity),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the worker. It returns ErrAlreadyRunning if a worker is active
// and ErrStopped once the dispatcher has stopped; a Dispatcher is not restartable.
//
// Cancelling ctx stops the worker the same way Stop does.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.run()

	d.logger.Info("dispatcher started",
		"max_rps", d.cfg.MaxRequestsPerSecond,
		"min_delay", d.cfg.MinDelay,
		"max_retries", d.cfg.MaxRetries,
	)
	return nil
}

// Stop shuts the worker down. Operations still queued are finished with
// ErrStopped and later submissions fail immediately.
//
// If ctx ends first, Stop returns ctx.Err() while the in-flight operation is
// still running. The worker finishes what is queued with ErrStopped once that
// operation returns, and Stats().Running stays true until then.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopped.Store(true)
	if d.cancel != nil {
		d.cancel()
	}
	d.queue.Close()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("dispatcher stop timed out", "queued", d.queue.Len())
		return ctx.Err()
	}

	// Covers a dispatcher that was never started.
	if n := d.abandon(); n > 0 {
		d.logger.Info("dispatcher stopped", "abandoned", n)
	}
	return nil
}

// abandon closes the queue and finishes everything still in it with ErrStopped.
func (d *Dispatcher) abandon() int {
	d.queue.Close()
	pending := d.queue.DrainTo(0)
	for _, e := range pending {
		e.finish(ErrStopped)
	}
	return len(pending)
}

// Enqueue appends op to the tail of the queue. Failures are logged, never returned.
func (d *Dispatcher) Enqueue(op Operation) {
	d.Submit(op, nil)
}

// Submit appends op to the tail of the queue. done, if non-nil, is called exactly
// once when op terminates: nil on success, the terminal error otherwise.
func (d *Dispatcher) Submit(op Operation, done func(error)) {
	e := &entry{op: op, done: done}
	if !d.queue.PushBack(e) {
		e.finish(ErrStopped)
		return
	}
	d.enqueued.Add(1)
	d.notify()
}

// Do submits op and waits for it to terminate or for ctx to be done. The
// operation still runs if ctx ends first; only the wait is abandoned.
func (d *Dispatcher) Do(ctx context.Context, op Operation) error {
	done := make(chan error, 1)
	d.Submit(op, func(err error) { done <- err })

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued operations.
func (d *Dispatcher) Len() int {
	return d.queue.Len()
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:   d.enqueued.Load(),
		Dispatched: d.dispatched.Load(),
		Succeeded:  d.succeeded.Load(),
		Retried:    d.retried.Load(),
		Dropped:    d.dropped.Load(),
		Queued:     d.queue.Len(),
		Running:    d.running.Load(),
	}
}

func (d *Dispatcher) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// run is the worker loop. It drains the queue, then idles until woken or until
// one target interval passes.
func (d *Dispatcher) run() {
	defer d.wg.Done()
	defer func() {
		d.stopped.Store(true)
		n := d.abandon()
		d.running.Store(false)
		d.logger.Info("dispatcher stopped", "abandoned", n)
	}()

	for {
		d.drain()
		if d.ctx.Err() != nil {
			return
		}

		idle := time.NewTimer(d.cfg.TargetInterval())
		select {
		case <-d.ctx.Done():
			idle.Stop()
			return
		case <-d.wake:
			idle.Stop()
		case <-idle.C:
		}
	}
}

// drain dispatches queued operations until the queue is empty or the context ends.
func (d *Dispatcher) drain() {
	for d.queue.Len() > 0 {
		if err := sleep(d.ctx, d.nextWait()); err != nil {
			return
		}

		e, ok := d.queue.PopFront()
		if !ok {
			continue
		}
		d.execute(e)
	}
}

// nextWait returns how long to wait before the next dispatch.
func (d *Dispatcher) nextWait() time.Duration {
	wait := d.cfg.TargetInterval() - time.Since(d.lastDispatch)
	if wait < d.cfg.MinDelay {
		wait = d.cfg.MinDelay
	}
	return wait
}

// execute runs one entry and decides between success, retry and drop.
func (d *Dispatcher) execute(e *entry) {
	d.lastDispatch = time.Now()
	d.dispatched.Add(1)

	err := d.call(e.op)
	if err == nil {
		d.succeeded.Add(1)
		e.finish(nil)
		return
	}

	if !IsRetryable(err) {
		d.drop(e, err)
		return
	}
	if e.retryCount >= d.cfg.MaxRetries {
		d.drop(e, fmt.Errorf("%w after %d attempts: %w", ErrRetryBudgetExhausted, e.retryCount+1, err))
		return
	}

	delay := d.retryDelay(e.retryCount, err)
	e.retryCount++
	d.retried.Add(1)

	d.logger.Debug("retrying request",
		"attempt", e.retryCount,
		"delay", delay,
		"err", err,
	)
	if d.onRetry != nil {
		d.onRetry(e.retryCount, delay, err)
	}

	_ = sleep(d.ctx, delay)
	if !d.queue.PushFront(e) {
		e.finish(ErrStopped)
	}
}

// retryDelay prefers the server's Retry-After and falls back to exponential backoff.
func (d *Dispatcher) retryDelay(retryCount int, err error) time.Duration {
	if after := RetryAfter(err); after > 0 {
		return after
	}
	return d.cfg.Backoff.Delay(retryCount)
}

func (d *Dispatcher) drop(e *entry, err error) {
	d.dropped.Add(1)
	attempts := e.retryCount + 1

	d.logger.Warn("dropping request",
		"attempts", attempts,
		"err", err,
	)
	if d.onDrop != nil {
		d.onDrop(err, attempts)
	}
	e.finish(err)
}

// call runs op, converting a panic into an error.
func (d *Dispatcher) call(op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrOperationPanicked, r)
		}
	}()
	return op(d.ctx)
}

// sleep waits for dur or until ctx is done.
func sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
