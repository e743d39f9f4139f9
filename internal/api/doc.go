// Package api provides the Finnhub REST client used for quotes and company profiles.
//
// Endpoints:
//   - GET /quote?symbol=SYM           current price, change, day range
//   - GET /stock/profile2?symbol=SYM  company name, currency, exchange
//
// The client makes exactly one attempt per call. Retries, spacing and rate
// limiting belong to the dispatcher; APIError carries what it needs to decide
// (IsRetryable, RetryAfter).
package api
