package watch

import (
	"time"

	"github.com/rickgao/portfolio-tracker/internal/model"
)

// PriceFunc receives price changes for one symbol.
//
// It is called on the dispatcher goroutine. It must not block for long and
// must not call Unwatch synchronously.
type PriceFunc func(update model.PriceUpdate)

// deliver records a fetched quote and notifies the symbol's callback if the
// price changed. Holding deliverMu for the whole call is what keeps a
// callback from running after Unwatch returns.
func (r *Registry) deliver(symbol string, q *model.Quote) bool {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	e, ok := r.symbols[symbol]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if e.hasLast && e.last.Equal(q.Current) {
		r.mu.Unlock()
		return false
	}
	e.last = q.Current
	e.hasLast = true
	fn := e.fn
	r.mu.Unlock()

	observed := q.Timestamp
	if observed.IsZero() {
		observed = time.Now().UTC()
	}

	fn(model.PriceUpdate{
		Symbol:     symbol,
		Price:      q.Current,
		ObservedAt: observed,
	})
	return true
}
