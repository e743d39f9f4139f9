// Package watch tracks the set of symbols the tracker follows and turns them
// into a stream of price changes.
//
// Each watched symbol has one callback, one last-seen price and one poll
// schedule. Watch enqueues an immediate fetch and arms a schedule that
// enqueues another fetch every PollInterval. All fetches go through the
// shared dispatcher, so the registry never talks to the quote API directly
// and never exceeds its rate limit.
//
// A callback fires only when the fetched price differs from the last one
// recorded for the symbol. Callbacks run on the dispatcher goroutine and are
// serialised with Unwatch: once Unwatch returns, the symbol's callback will
// not be called again.
package watch
