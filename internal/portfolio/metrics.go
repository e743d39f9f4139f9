package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/rickgao/portfolio-tracker/internal/model"
)

// Metrics summarises a set of holdings.
type Metrics struct {
	Holdings        int             `json:"holdings"`
	TotalValue      decimal.Decimal `json:"total_value"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
	TotalGain       decimal.Decimal `json:"total_gain"`
	TotalGainPct    decimal.Decimal `json:"total_gain_pct"`
	TopPerformer    *model.Holding  `json:"top_performer,omitempty"`
	WorstPerformer  *model.Holding  `json:"worst_performer,omitempty"`
}

// ComputeMetrics totals value and cost across holdings and picks the best and
// worst performers by percentage change. Ties keep the earlier holding.
func ComputeMetrics(holdings []model.Holding) Metrics {
	m := Metrics{
		Holdings:        len(holdings),
		TotalValue:      decimal.Zero,
		TotalInvestment: decimal.Zero,
		TotalGain:       decimal.Zero,
		TotalGainPct:    decimal.Zero,
	}
	if len(holdings) == 0 {
		return m
	}

	top, worst := 0, 0
	for i, h := range holdings {
		m.TotalValue = m.TotalValue.Add(h.Value())
		m.TotalInvestment = m.TotalInvestment.Add(h.Cost())

		if h.Performance().GreaterThan(holdings[top].Performance()) {
			top = i
		}
		if h.Performance().LessThan(holdings[worst].Performance()) {
			worst = i
		}
	}

	m.TotalGain = m.TotalValue.Sub(m.TotalInvestment)
	if !m.TotalInvestment.IsZero() {
		m.TotalGainPct = m.TotalGain.Div(m.TotalInvestment).Mul(decimal.NewFromInt(100))
	}

	topH, worstH := holdings[top], holdings[worst]
	m.TopPerformer = &topH
	m.WorstPerformer = &worstH
	return m
}
