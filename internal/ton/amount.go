package ton

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// 1 TON = 1_000_000_000 nanoTON.
const nanoExp = 9

// FormatTON renders nanoTON as a decimal TON string ("5.5").
func FormatTON(nano uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(nano), -nanoExp).String()
}

// ParseTON converts a decimal TON string to nanoTON. More than nine
// fractional digits is an error rather than silent truncation.
func ParseTON(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid TON amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative TON amount %q", s)
	}
	nano := d.Shift(nanoExp)
	if !nano.Equal(nano.Truncate(0)) {
		return 0, fmt.Errorf("TON amount %q has more than %d decimals", s, nanoExp)
	}
	n := nano.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("TON amount %q is too large", s)
	}
	return n.Uint64(), nil
}
