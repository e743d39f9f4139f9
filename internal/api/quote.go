package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/portfolio-tracker/internal/model"
)

// GetQuote fetches the current quote for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("get quote: %w", ErrSymbolNotFound)
	}

	query := url.Values{}
	query.Set("symbol", symbol)

	var resp QuoteResponse
	if err := c.get(ctx, "/quote", query, &resp); err != nil {
		return nil, fmt.Errorf("get quote %s: %w", symbol, err)
	}

	q, err := convertQuote(symbol, resp)
	if err != nil {
		return nil, fmt.Errorf("get quote %s: %w", symbol, err)
	}
	return q, nil
}

// convertQuote validates a wire quote and converts it to the model type.
func convertQuote(symbol string, r QuoteResponse) (*model.Quote, error) {
	if r.Current == nil {
		return nil, fmt.Errorf("%w: missing current price", ErrMalformedResponse)
	}
	// Finnhub answers unknown symbols with 200 and an all-zero body.
	if *r.Current == 0 && r.Timestamp == 0 {
		return nil, ErrSymbolNotFound
	}

	q := &model.Quote{
		Symbol:        symbol,
		Current:       decimal.NewFromFloat(*r.Current),
		High:          decimal.NewFromFloat(r.High),
		Low:           decimal.NewFromFloat(r.Low),
		Open:          decimal.NewFromFloat(r.Open),
		PreviousClose: decimal.NewFromFloat(r.PreviousClose),
	}
	if r.Change != nil {
		q.Change = decimal.NewFromFloat(*r.Change)
	}
	if r.PercentChange != nil {
		q.PercentChange = decimal.NewFromFloat(*r.PercentChange)
	}
	if r.Timestamp > 0 {
		q.Timestamp = time.Unix(r.Timestamp, 0).UTC()
	}
	return q, nil
}
