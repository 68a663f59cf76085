package remittance

import (
	"fmt"
	"math"
	"math/bits"
)

const (
	// RatioDenominator expresses the threshold ratio in parts per thousand.
	RatioDenominator = 1000

	// MaxFeeAmount keeps feeAmount*RatioDenominator inside uint64.
	MaxFeeAmount = math.MaxUint64 / RatioDenominator
)

// FeeConfig is the owner-controlled fee policy read on every deposit.
type FeeConfig struct {
	Amount         uint64 `json:"fee_amount"`
	ThresholdRatio uint64 `json:"fee_threshold_ratio"`
}

// Validate rejects configurations the fee computation cannot honour.
func (c FeeConfig) Validate() error {
	if c.Amount > MaxFeeAmount {
		return fmt.Errorf("%w: fee amount %d exceeds %d", ErrOverflow, c.Amount, uint64(MaxFeeAmount))
	}
	if err := validateRatio(c.ThresholdRatio); err != nil {
		return err
	}
	return nil
}

// Threshold is the smallest deposit that is charged the flat fee.
func (c FeeConfig) Threshold() uint64 {
	return c.Amount * RatioDenominator / c.ThresholdRatio
}

// validateRatio keeps the ratio in 1..1000 so the threshold is defined and
// never smaller than the fee itself.
func validateRatio(ratio uint64) error {
	if ratio == 0 || ratio > RatioDenominator {
		return fmt.Errorf("%w: fee threshold ratio must be in 1..%d, got %d", ErrInvalidInput, RatioDenominator, ratio)
	}
	return nil
}

// ComputeFee splits a deposit into the net amount held in escrow and the fee
// credited to the owner. Deposits below the threshold are not charged.
func ComputeFee(deposit uint64, cfg FeeConfig) (net, fee uint64, err error) {
	if err := cfg.Validate(); err != nil {
		return 0, 0, err
	}
	if deposit < cfg.Threshold() {
		return deposit, 0, nil
	}
	net, err = subChecked(deposit, cfg.Amount)
	if err != nil {
		return 0, 0, err
	}
	return net, cfg.Amount, nil
}

func addChecked(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

func subChecked(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", ErrUnderflow, a, b)
	}
	return diff, nil
}
