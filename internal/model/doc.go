// Package model defines shared data types used across the portfolio tracker.
//
// All persisted types mirror the schema created by database.HoldingRepository.Migrate.
//
// Conventions:
//   - Prices and quantities: shopspring/decimal, never float64 past the API boundary
//   - Symbols: upper-case, trimmed (see NormalizeSymbol)
//   - Timestamps: time.Time in UTC
//   - IDs: uuid.UUID for holdings
package model
