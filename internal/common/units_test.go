package common

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		decimals uint8
		expected string
	}{
		{"whole dollars", big.NewInt(5_000_000), 6, "5.00"},
		{"cents", big.NewInt(1_230_000), 6, "1.23"},
		{"truncates, never rounds", big.NewInt(1_999_999), 6, "1.99"},
		{"sub-cent dust", big.NewInt(999), 6, "0.00"},
		{"zero", big.NewInt(0), 6, "0.00"},
		{"nil", nil, 6, "0.00"},
		{"negative", big.NewInt(-2_500_000), 6, "-2.50"},
		{"18 decimals", big.NewInt(1_500_000_000_000_000_000), 18, "1.50"},
		{"zero decimals", big.NewInt(7), 0, "7.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUnits(tt.amount, tt.decimals))
		})
	}
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits("5.00", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5_000_000), v)

	v, err = ParseUnits("0.1", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100_000), v)

	v, err = ParseUnits("42", 2)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(4200), v)

	_, err = ParseUnits("1.234", 2)
	assert.Error(t, err)

	_, err = ParseUnits("abc", 6)
	assert.Error(t, err)
}

func TestParseFormatRoundTrip(t *testing.T) {
	v, err := ParseUnits("12.34", 6)
	require.NoError(t, err)
	assert.Equal(t, "12.34", FormatUnits(v, 6))
}
