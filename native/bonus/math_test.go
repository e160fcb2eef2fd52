package bonus

import (
	"math/big"
	"testing"
)

func TestComputeBonusWorkedExample(t *testing.T) {
	got := ComputeBonus(big.NewInt(1_000), 10, secondsPerYear, new(big.Int).Set(oneToken), 70)
	if got.Int64() != 70 {
		t.Fatalf("expected bonus 70, got %s", got)
	}
}

func TestComputeBonusZeroPriceFallsBackToParity(t *testing.T) {
	withZero := ComputeBonus(big.NewInt(1_000), 10, secondsPerYear, big.NewInt(0), 70)
	withNil := ComputeBonus(big.NewInt(1_000), 10, secondsPerYear, nil, 70)
	if withZero.Int64() != 70 || withNil.Int64() != 70 {
		t.Fatalf("expected parity fallback, got %s / %s", withZero, withNil)
	}
}

func TestComputeBonusScalesWithPrice(t *testing.T) {
	// Subsidy token worth twice the deposit asset halves the bonus.
	price := new(big.Int).Mul(big.NewInt(2), oneToken)
	got := ComputeBonus(big.NewInt(1_000), 10, secondsPerYear, price, 70)
	if got.Int64() != 35 {
		t.Fatalf("expected 35, got %s", got)
	}
	half := ComputeBonus(big.NewInt(1_000), 10, secondsPerYear/2, nil, 100)
	if half.Int64() != 50 {
		t.Fatalf("expected 50 for half a year, got %s", half)
	}
}

func TestComputeBonusTruncatesSmallPositions(t *testing.T) {
	if got := ComputeBonus(big.NewInt(9), 10, secondsPerYear, nil, 70); got.Sign() != 0 {
		t.Fatalf("expected truncation to zero, got %s", got)
	}
	if got := ComputeBonus(big.NewInt(0), 10, secondsPerYear, nil, 70); got.Sign() != 0 {
		t.Fatalf("expected zero for empty principal, got %s", got)
	}
}
