package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		input    string
		want     float64
		currency string
		isNil    bool
	}{
		{input: "1,234.56", want: 1234.56},
		{input: "1.234,56", want: 1234.56},
		{input: "€ 1 234,56", want: 1234.56, currency: "EUR"},
		{input: "(12.50)", want: -12.5},
		{input: "$1,000", want: 1000, currency: "USD"},
		{input: "£12", want: 12, currency: "GBP"},
		{input: "1,234", want: 1234},
		{input: "12,5", want: 12.5},
		{input: "1.234.567", want: 1234567},
		{input: "2500 EUR", want: 2500, currency: "EUR"},
		{input: "-40", want: -40},
		{input: "0", want: 0},
		{input: "1 234 567,8", want: 1234567.8},
		{input: "", isNil: true},
		{input: "   ", isNil: true},
		{input: "N/A", isNil: true},
		{input: "unknown", isNil: true},
		{input: "$", isNil: true, currency: "USD"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, currency := ParseDecimal(tt.input)
			assert.Equal(t, tt.currency, currency)
			if tt.isNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, tt.want, *got, 1e-9)
		})
	}
}

func TestParseDecimalZeroIsNotNil(t *testing.T) {
	zero, _ := ParseDecimal("0.00")
	require.NotNil(t, zero, "zero and no data are distinct")
	assert.Zero(t, *zero)
}
