package remittance

import (
	"errors"
	"math"
	"testing"
)

func TestComputeFee(t *testing.T) {
	tests := []struct {
		name    string
		deposit uint64
		cfg     FeeConfig
		wantNet uint64
		wantFee uint64
	}{
		{"owner scenario", 2_900_001, FeeConfig{Amount: 29000, ThresholdRatio: 10}, 2_871_001, 29000},
		{"small deposit under large fee", 29000, FeeConfig{Amount: 29000, ThresholdRatio: 10}, 29000, 0},
		{"exactly threshold", 100_000, FeeConfig{Amount: 1000, ThresholdRatio: 10}, 99_000, 1000},
		{"one below threshold", 99_999, FeeConfig{Amount: 1000, ThresholdRatio: 10}, 99_999, 0},
		{"ratio 1000 threshold equals fee", 1000, FeeConfig{Amount: 1000, ThresholdRatio: 1000}, 0, 1000},
		{"zero fee", 5, FeeConfig{Amount: 0, ThresholdRatio: 1}, 5, 0},
		{"max deposit", math.MaxUint64, FeeConfig{Amount: 1, ThresholdRatio: 1}, math.MaxUint64 - 1, 1},
		{"integer division floors threshold", 333, FeeConfig{Amount: 1, ThresholdRatio: 3}, 332, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, fee, err := ComputeFee(tt.deposit, tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if net != tt.wantNet || fee != tt.wantFee {
				t.Errorf("got net=%d fee=%d, want net=%d fee=%d", net, fee, tt.wantNet, tt.wantFee)
			}
			if net+fee != tt.deposit {
				t.Errorf("value not conserved: %d + %d != %d", net, fee, tt.deposit)
			}
		})
	}
}

func TestFeeConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  FeeConfig
		want error
	}{
		{"ok", FeeConfig{Amount: 10, ThresholdRatio: 500}, nil},
		{"ratio zero", FeeConfig{Amount: 10, ThresholdRatio: 0}, ErrInvalidInput},
		{"ratio above denominator", FeeConfig{Amount: 10, ThresholdRatio: 1001}, ErrInvalidInput},
		{"fee too large", FeeConfig{Amount: MaxFeeAmount + 1, ThresholdRatio: 1}, ErrOverflow},
		{"largest fee", FeeConfig{Amount: MaxFeeAmount, ThresholdRatio: 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckedArithmetic(t *testing.T) {
	if _, err := addChecked(math.MaxUint64, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("add: got %v", err)
	}
	if _, err := subChecked(0, 1); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("sub: got %v", err)
	}
	if v, err := addChecked(2, 3); err != nil || v != 5 {
		t.Fatalf("add: %d %v", v, err)
	}
}
