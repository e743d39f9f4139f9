package database

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS holdings (
	id            UUID PRIMARY KEY,
	symbol        TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	quantity      NUMERIC(20, 8) NOT NULL,
	buy_price     NUMERIC(20, 8) NOT NULL,
	current_price NUMERIC(20, 8) NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS holdings_symbol_idx ON holdings (symbol);

CREATE TABLE IF NOT EXISTS price_history (
	symbol      TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	price       NUMERIC(20, 8) NOT NULL,
	PRIMARY KEY (symbol, observed_at)
);
`

// Migrate creates the tracker's tables if they do not exist.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
