package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeError struct {
	retryable bool
	after     time.Duration
}

func (e *fakeError) Error() string              { return "fake" }
func (e *fakeError) IsRetryable() bool          { return e.retryable }
func (e *fakeError) RetryAfter() time.Duration { return e.after }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() Config {
	return Config{
		MaxRequestsPerSecond: 1000,
		MinDelay:             time.Millisecond,
		MaxRetries:           3,
		Backoff:              BackoffPolicy{Base: time.Millisecond, Max: 8 * time.Millisecond},
		InitialCapacity:      4,
	}
}

func startDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d.Stop(ctx)
	})
}

// submitWait submits op and returns a channel receiving its terminal error.
func submitWait(d *Dispatcher, op Operation) <-chan error {
	ch := make(chan error, 1)
	d.Submit(op, func(err error) { ch <- err })
	return ch
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for operation to finish")
		return nil
	}
}

func TestDispatcher_RunsInFIFOOrder(t *testing.T) {
	d := New(fastConfig(), testLogger())

	var mu sync.Mutex
	var order []int
	var last <-chan error
	for i := 0; i < 5; i++ {
		last = submitWait(d, func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}

	startDispatcher(t, d)
	if err := waitErr(t, last); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want 0..4", order)
		}
	}
}

func TestDispatcher_SpacesDispatches(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRequestsPerSecond = 50 // 20ms target
	d := New(cfg, testLogger())

	var mu sync.Mutex
	var stamps []time.Time
	var last <-chan error
	for i := 0; i < 4; i++ {
		last = submitWait(d, func(ctx context.Context) error {
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
			return nil
		})
	}

	startDispatcher(t, d)
	waitErr(t, last)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		// Allow scheduler slack below the 20ms target.
		if gap < 15*time.Millisecond {
			t.Errorf("gap %d = %v, want >= ~20ms", i, gap)
		}
	}
}

func TestDispatcher_MinDelayFloor(t *testing.T) {
	cfg := fastConfig()
	cfg.MinDelay = 25 * time.Millisecond
	d := New(cfg, testLogger())

	var mu sync.Mutex
	var stamps []time.Time
	var last <-chan error
	for i := 0; i < 3; i++ {
		last = submitWait(d, func(ctx context.Context) error {
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
			return nil
		})
	}

	startDispatcher(t, d)
	waitErr(t, last)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 20*time.Millisecond {
			t.Errorf("gap %d = %v, want >= MinDelay", i, gap)
		}
	}
}

func TestDispatcher_DropsAfterRetryBudget(t *testing.T) {
	var dropped atomic.Int32
	var mu sync.Mutex
	var delays []time.Duration

	d := New(fastConfig(), testLogger(),
		WithDropHandler(func(err error, attempts int) {
			dropped.Add(1)
			if attempts != 4 {
				t.Errorf("attempts = %d, want 4", attempts)
			}
		}),
		WithRetryHandler(func(attempt int, delay time.Duration, err error) {
			mu.Lock()
			delays = append(delays, delay)
			mu.Unlock()
		}),
	)
	startDispatcher(t, d)

	var calls atomic.Int32
	err := waitErr(t, submitWait(d, func(ctx context.Context) error {
		calls.Add(1)
		return &fakeError{retryable: true}
	}))

	if !errors.Is(err, ErrRetryBudgetExhausted) {
		t.Errorf("err = %v, want ErrRetryBudgetExhausted", err)
	}
	var fe *fakeError
	if !errors.As(err, &fe) {
		t.Errorf("err = %v, want wrapped fakeError", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("calls = %d, want 4 (1 + MaxRetries)", got)
	}
	if dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", dropped.Load())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delays) != 3 {
		t.Fatalf("retries = %d, want 3", len(delays))
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] < delays[i-1] {
			t.Errorf("delays not non-decreasing: %v", delays)
		}
	}
}

func TestDispatcher_SucceedsOnRetry(t *testing.T) {
	d := New(fastConfig(), testLogger())
	startDispatcher(t, d)

	var calls atomic.Int32
	err := waitErr(t, submitWait(d, func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return &fakeError{retryable: true}
		}
		return nil
	}))

	if err != nil {
		t.Errorf("err = %v, want nil", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}

	stats := d.Stats()
	if stats.Retried != 2 || stats.Succeeded != 1 || stats.Dropped != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDispatcher_NonRetryableRunsOnce(t *testing.T) {
	d := New(fastConfig(), testLogger())
	startDispatcher(t, d)

	permanent := errors.New("not found")
	var calls atomic.Int32
	err := waitErr(t, submitWait(d, func(ctx context.Context) error {
		calls.Add(1)
		return permanent
	}))

	if !errors.Is(err, permanent) {
		t.Errorf("err = %v, want %v", err, permanent)
	}
	if errors.Is(err, ErrRetryBudgetExhausted) {
		t.Error("permanent failure should not be reported as budget exhaustion")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestDispatcher_RetryJumpsAheadOfNewerWork(t *testing.T) {
	d := New(fastConfig(), testLogger())

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	var aCalls atomic.Int32
	doneA := submitWait(d, func(ctx context.Context) error {
		record("a")
		if aCalls.Add(1) == 1 {
			return &fakeError{retryable: true}
		}
		return nil
	})
	doneB := submitWait(d, func(ctx context.Context) error {
		record("b")
		return nil
	})

	startDispatcher(t, d)
	waitErr(t, doneA)
	waitErr(t, doneB)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "a", "b"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDispatcher_PrefersRetryAfter(t *testing.T) {
	var got time.Duration
	d := New(fastConfig(), testLogger(),
		WithRetryHandler(func(attempt int, delay time.Duration, err error) {
			got = delay
		}),
	)
	startDispatcher(t, d)

	var calls atomic.Int32
	waitErr(t, submitWait(d, func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return &fakeError{retryable: true, after: 30 * time.Millisecond}
		}
		return nil
	}))

	if got != 30*time.Millisecond {
		t.Errorf("retry delay = %v, want 30ms from Retry-After", got)
	}
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	d := New(fastConfig(), testLogger())
	startDispatcher(t, d)

	err := waitErr(t, submitWait(d, func(ctx context.Context) error {
		panic("boom")
	}))
	if !errors.Is(err, ErrOperationPanicked) {
		t.Errorf("err = %v, want ErrOperationPanicked", err)
	}

	// Worker survives the panic.
	if err := waitErr(t, submitWait(d, func(ctx context.Context) error { return nil })); err != nil {
		t.Errorf("follow-up err = %v", err)
	}
}

func TestDispatcher_DoubleStart(t *testing.T) {
	d := New(fastConfig(), testLogger())
	startDispatcher(t, d)

	if err := d.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() = %v, want ErrAlreadyRunning", err)
	}
}

func TestDispatcher_StopFailsPending(t *testing.T) {
	d := New(fastConfig(), testLogger())

	pending := submitWait(d, func(ctx context.Context) error {
		t.Error("operation should not run")
		return nil
	})

	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := waitErr(t, pending); !errors.Is(err, ErrStopped) {
		t.Errorf("pending err = %v, want ErrStopped", err)
	}

	late := submitWait(d, func(ctx context.Context) error { return nil })
	if err := waitErr(t, late); !errors.Is(err, ErrStopped) {
		t.Errorf("late submit err = %v, want ErrStopped", err)
	}
}

func TestDispatcher_StopTimeout(t *testing.T) {
	d := New(fastConfig(), testLogger())
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	blocked := submitWait(d, func(ctx context.Context) error {
		close(started)
		<-release // ignores ctx
		return nil
	})
	<-started
	pending := submitWait(d, func(ctx context.Context) error {
		t.Error("operation should not run")
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop() error = %v, want DeadlineExceeded", err)
	}

	late := submitWait(d, func(ctx context.Context) error { return nil })
	if err := waitErr(t, late); !errors.Is(err, ErrStopped) {
		t.Errorf("late submit err = %v, want ErrStopped", err)
	}
	if !d.Stats().Running {
		t.Error("worker still inside an operation should report running")
	}

	close(release)
	if err := waitErr(t, blocked); err != nil {
		t.Errorf("in-flight err = %v, want nil", err)
	}
	if err := waitErr(t, pending); !errors.Is(err, ErrStopped) {
		t.Errorf("pending err = %v, want ErrStopped", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Stats().Running {
		if time.Now().After(deadline) {
			t.Fatal("worker did not exit")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatcher_ParentContextCancel(t *testing.T) {
	d := New(fastConfig(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for d.Stats().Running {
		if time.Now().After(deadline) {
			t.Fatal("worker did not exit after parent cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}

	late := submitWait(d, func(ctx context.Context) error { return nil })
	if err := waitErr(t, late); !errors.Is(err, ErrStopped) {
		t.Errorf("submit after cancel err = %v, want ErrStopped", err)
	}
	if err := d.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("restart err = %v, want ErrStopped", err)
	}
	if err := d.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestDispatcher_WakesAfterIdle(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRequestsPerSecond = 1 // 1s idle timer
	cfg.MinDelay = 0
	d := New(cfg, testLogger())
	startDispatcher(t, d)

	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	waitErr(t, submitWait(d, func(ctx context.Context) error { return nil }))
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("idle worker took %v to pick up work", elapsed)
	}
}

func TestClassification(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), &fakeError{retryable: true, after: time.Second})

	if !IsRetryable(wrapped) {
		t.Error("IsRetryable should see through wrapping")
	}
	if RetryAfter(wrapped) != time.Second {
		t.Errorf("RetryAfter = %v, want 1s", RetryAfter(wrapped))
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain error should not be retryable")
	}
	if RetryAfter(nil) != 0 {
		t.Error("RetryAfter(nil) should be 0")
	}
}

func TestConfig_TargetInterval(t *testing.T) {
	if got := DefaultConfig().TargetInterval(); got != 50*time.Millisecond {
		t.Errorf("TargetInterval() = %v, want 50ms", got)
	}
}

func TestDispatcher_Do(t *testing.T) {
	d := New(fastConfig(), testLogger())
	startDispatcher(t, d)

	var ran atomic.Bool
	if err := d.Do(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !ran.Load() {
		t.Error("operation did not run")
	}

	permanent := errors.New("bad request")
	if err := d.Do(context.Background(), func(ctx context.Context) error { return permanent }); !errors.Is(err, permanent) {
		t.Errorf("Do() error = %v, want %v", err, permanent)
	}
}

func TestDispatcher_DoContextDone(t *testing.T) {
	// Not started, so nothing drains the queue.
	d := New(fastConfig(), testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := d.Do(ctx, func(ctx context.Context) error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want DeadlineExceeded", err)
	}
}
