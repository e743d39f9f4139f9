// Package database provides PostgreSQL storage for the tracker.
//
// Tables:
//   - holdings: one row per position (relational, updated in place)
//   - price_history: append-only price changes, keyed by (symbol, observed_at)
//
// Holdings are read and written through HoldingRepository. Price changes are
// batched by PriceWriter.
package database
