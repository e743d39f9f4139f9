package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// -----------------------------------------------------------------------------
// Market Data
// -----------------------------------------------------------------------------

// Quote is a point-in-time quote for one symbol.
type Quote struct {
	Symbol        string          `json:"symbol"`         // Ticker symbol (e.g., "AAPL")
	Current       decimal.Decimal `json:"current"`        // Current price
	Change        decimal.Decimal `json:"change"`         // Change since previous close
	PercentChange decimal.Decimal `json:"percent_change"` // Percent change since previous close
	High          decimal.Decimal `json:"high"`           // Day high
	Low           decimal.Decimal `json:"low"`            // Day low
	Open          decimal.Decimal `json:"open"`           // Day open
	PreviousClose decimal.Decimal `json:"previous_close"` // Previous close
	Timestamp     time.Time       `json:"timestamp"`      // Exchange timestamp of the quote
}

// PriceUpdate is a price change for a watched symbol.
type PriceUpdate struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Profile holds company details for a symbol.
type Profile struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Exchange string `json:"exchange"`
	Industry string `json:"industry"`
}

// -----------------------------------------------------------------------------
// Portfolio
// -----------------------------------------------------------------------------

// Holding is a position in one security.
type Holding struct {
	ID           uuid.UUID       `json:"id"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Quantity     decimal.Decimal `json:"quantity"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

var hundred = decimal.NewFromInt(100)

// Value is the market value of the holding at its current price.
func (h Holding) Value() decimal.Decimal {
	return h.Quantity.Mul(h.CurrentPrice)
}

// Cost is the amount paid for the holding.
func (h Holding) Cost() decimal.Decimal {
	return h.Quantity.Mul(h.BuyPrice)
}

// Gain is Value minus Cost.
func (h Holding) Gain() decimal.Decimal {
	return h.Value().Sub(h.Cost())
}

// Performance is the percentage change from buy price to current price.
// Zero when the buy price is zero.
func (h Holding) Performance() decimal.Decimal {
	if h.BuyPrice.IsZero() {
		return decimal.Zero
	}
	return h.CurrentPrice.Sub(h.BuyPrice).Div(h.BuyPrice).Mul(hundred)
}
