package watch

import (
	"context"
	"time"
)

// schedule enqueues a fetch for symbol every PollInterval until ctx is cancelled.
func (r *Registry) schedule(ctx context.Context, symbol string) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, symbol)
		}
	}
}

// tick enqueues one poll. The cancellation check happens under the registry
// lock, the same lock Unwatch cancels under.
func (r *Registry) tick(ctx context.Context, symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if _, ok := r.symbols[symbol]; !ok {
		return
	}

	r.enqueuer.Enqueue(r.fetchOp(symbol))
	r.polls.Add(1)
}
