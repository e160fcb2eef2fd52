package bonus

import "math/big"

const secondsPerYear = 365 * 24 * 60 * 60

var (
	oneToken   = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	hundred    = big.NewInt(100)
	yearFactor = new(big.Int).Mul(hundred, big.NewInt(secondsPerYear))
)

// ComputeBonus prices the expected yield of principal over maturitySeconds
// at the benchmark rate in subsidy tokens and applies the bonus ratio. A zero
// oracle price is treated as parity.
func ComputeBonus(principal *big.Int, benchmarkPct, maturitySeconds uint64, price *big.Int, ratioPct uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	expected := new(big.Int).Mul(principal, new(big.Int).SetUint64(benchmarkPct))
	expected.Mul(expected, new(big.Int).SetUint64(maturitySeconds))
	expected.Quo(expected, yearFactor)

	scaled := price
	if scaled == nil || scaled.Sign() <= 0 {
		scaled = oneToken
	}
	inSubsidy := new(big.Int).Mul(expected, oneToken)
	inSubsidy.Quo(inSubsidy, scaled)

	bonus := inSubsidy.Mul(inSubsidy, new(big.Int).SetUint64(ratioPct))
	return bonus.Quo(bonus, hundred)
}
