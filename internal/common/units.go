package common

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatUnits renders a token amount in base units as a decimal string with
// exactly two fractional digits, e.g. 5_000_000 at 6 decimals -> "5.00".
// Truncates, never rounds up; display amounts must not overstate balances.
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0.00"
	}

	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole := new(big.Int).Div(abs, scale)
	frac := new(big.Int).Mod(abs, scale)

	fracStr := frac.String()
	if pad := int(decimals) - len(fracStr); pad > 0 {
		fracStr = strings.Repeat("0", pad) + fracStr
	}
	if len(fracStr) > 2 {
		fracStr = fracStr[:2]
	} else if len(fracStr) < 2 {
		fracStr += strings.Repeat("0", 2-len(fracStr))
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%s.%s", sign, whole.String(), fracStr)
}

// ParseUnits converts a decimal string like "5.00" into base units.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	parts := strings.SplitN(s, ".", 2)
	whole, frac := parts[0], ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("too many fractional digits in %q for %d decimals", s, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", s)
	}
	return v, nil
}
