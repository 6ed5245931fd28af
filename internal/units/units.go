// Package units converts between decimal strings and fixed-point integer amounts.
package units

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// USDCDecimals is the native precision of the USDC.e contract and of outcome shares.
const USDCDecimals = 6

var decimalPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ToUnits parses a non-negative decimal string into fixed-point units at the given precision.
// Fractional digits beyond the precision are truncated.
func ToUnits(s string, decimals int) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if !decimalPattern.MatchString(trimmed) {
		return nil, fmt.Errorf("invalid decimal %q", s)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// FromUnits renders fixed-point units as a decimal string with trailing zeros trimmed.
func FromUnits(n *big.Int, decimals int) string {
	if n == nil {
		return "0"
	}
	return decimal.NewFromBigInt(n, -int32(decimals)).String()
}

// MustUnits is ToUnits for constants known to be valid.
func MustUnits(s string, decimals int) *big.Int {
	v, err := ToUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}
