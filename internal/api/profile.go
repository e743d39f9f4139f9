package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rickgao/portfolio-tracker/internal/model"
)

// GetProfile fetches company details for a symbol.
func (c *Client) GetProfile(ctx context.Context, symbol string) (*model.Profile, error) {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("get profile: %w", ErrSymbolNotFound)
	}

	query := url.Values{}
	query.Set("symbol", symbol)

	var resp ProfileResponse
	if err := c.get(ctx, "/stock/profile2", query, &resp); err != nil {
		return nil, fmt.Errorf("get profile %s: %w", symbol, err)
	}
	if resp.Name == "" && resp.Ticker == "" {
		return nil, fmt.Errorf("get profile %s: %w", symbol, ErrSymbolNotFound)
	}

	return &model.Profile{
		Symbol:   symbol,
		Name:     resp.Name,
		Currency: resp.Currency,
		Exchange: resp.Exchange,
		Industry: resp.Industry,
	}, nil
}
