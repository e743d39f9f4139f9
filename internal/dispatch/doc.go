// Package dispatch implements the rate-limited request dispatcher.
//
// The Dispatcher:
//   - Runs a single worker that drains a queue of operations in order
//   - Spaces dispatches at 1/MaxRequestsPerSecond, never closer than MinDelay
//   - Retries rate-limited (429) and server (5xx) failures with exponential
//     backoff, pushing the retried operation back at the head of the queue
//   - Drops operations that fail permanently and reports them to the log and
//     an optional drop hook; the enqueuer never sees the error
package dispatch
