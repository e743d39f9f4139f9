package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/portfolio-tracker/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func holding(symbol, qty, buy, cur string) model.Holding {
	return model.Holding{
		Symbol:       symbol,
		Quantity:     dec(qty),
		BuyPrice:     dec(buy),
		CurrentPrice: dec(cur),
	}
}

func TestComputeMetrics(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		m := ComputeMetrics(nil)
		assert.Equal(t, 0, m.Holdings)
		assert.True(t, m.TotalValue.IsZero())
		assert.True(t, m.TotalGainPct.IsZero())
		assert.Nil(t, m.TopPerformer)
		assert.Nil(t, m.WorstPerformer)
	})

	t.Run("mixed", func(t *testing.T) {
		m := ComputeMetrics([]model.Holding{
			holding("AAPL", "10", "100", "150"), // +50%
			holding("MSFT", "5", "200", "180"),  // -10%
			holding("GOOGL", "2", "50", "55"),   // +10%
		})

		require.NotNil(t, m.TopPerformer)
		require.NotNil(t, m.WorstPerformer)
		assert.Equal(t, 3, m.Holdings)
		assert.True(t, m.TotalValue.Equal(dec("2510")), "value %s", m.TotalValue)
		assert.True(t, m.TotalInvestment.Equal(dec("2100")), "investment %s", m.TotalInvestment)
		assert.True(t, m.TotalGain.Equal(dec("410")), "gain %s", m.TotalGain)
		assert.Equal(t, "19.52", m.TotalGainPct.StringFixed(2))
		assert.Equal(t, "AAPL", m.TopPerformer.Symbol)
		assert.Equal(t, "MSFT", m.WorstPerformer.Symbol)
	})

	t.Run("zero investment", func(t *testing.T) {
		m := ComputeMetrics([]model.Holding{holding("FREE", "1", "0", "10")})
		assert.True(t, m.TotalGainPct.IsZero())
		assert.True(t, m.TotalGain.Equal(dec("10")))
	})

	t.Run("single holding is both top and worst", func(t *testing.T) {
		m := ComputeMetrics([]model.Holding{holding("AAPL", "1", "100", "90")})
		assert.Equal(t, "AAPL", m.TopPerformer.Symbol)
		assert.Equal(t, "AAPL", m.WorstPerformer.Symbol)
	})
}
