package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"aapl", "AAPL"},
		{"  msft ", "MSFT"},
		{"BRK.B", "BRK.B"},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeSymbol(tt.in); got != tt.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHolding(t *testing.T) {
	t.Run("gain", func(t *testing.T) {
		h := Holding{
			ID:           uuid.New(),
			Symbol:       "AAPL",
			Quantity:     dec("10"),
			BuyPrice:     dec("150"),
			CurrentPrice: dec("165.5"),
		}

		if got := h.Value(); !got.Equal(dec("1655")) {
			t.Errorf("Value() = %s, want 1655", got)
		}
		if got := h.Cost(); !got.Equal(dec("1500")) {
			t.Errorf("Cost() = %s, want 1500", got)
		}
		if got := h.Gain(); !got.Equal(dec("155")) {
			t.Errorf("Gain() = %s, want 155", got)
		}
		if got := h.Performance(); !got.Equal(dec("10.3333333333333333")) && got.StringFixed(2) != "10.33" {
			t.Errorf("Performance() = %s, want ~10.33", got)
		}
	})

	t.Run("loss", func(t *testing.T) {
		h := Holding{Quantity: dec("2"), BuyPrice: dec("200"), CurrentPrice: dec("150")}

		if got := h.Gain(); !got.Equal(dec("-100")) {
			t.Errorf("Gain() = %s, want -100", got)
		}
		if got := h.Performance(); !got.Equal(dec("-25")) {
			t.Errorf("Performance() = %s, want -25", got)
		}
	})

	t.Run("zero buy price", func(t *testing.T) {
		h := Holding{Quantity: dec("5"), CurrentPrice: dec("10")}

		if got := h.Performance(); !got.IsZero() {
			t.Errorf("Performance() = %s, want 0", got)
		}
	})
}
