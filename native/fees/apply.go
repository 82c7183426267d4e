package fees

import (
	"github.com/holiman/uint256"
)

// DiscountResult summarises the fee charged to a participant after their
// personal discount.
type DiscountResult struct {
	BaseFee   uint64
	Rebate    uint64
	Effective uint64
}

// ApplyDiscount computes base_fee × (1 − numerator / denominator). The rebate
// is floor(baseFee × numerator / denominator), so rounding always favours the
// pool. Numerators above the ceiling are rejected rather than clamped.
func (s Schedule) ApplyDiscount(baseFee, numerator uint64) (DiscountResult, error) {
	if err := s.ValidateDiscount(numerator); err != nil {
		return DiscountResult{}, err
	}
	result := DiscountResult{BaseFee: baseFee, Effective: baseFee}
	if baseFee == 0 || numerator == 0 {
		return result, nil
	}
	rebate := new(uint256.Int).Mul(uint256.NewInt(baseFee), uint256.NewInt(numerator))
	rebate.Div(rebate, uint256.NewInt(s.denominator))
	// numerator <= denominator, so the rebate never exceeds baseFee.
	result.Rebate = rebate.Uint64()
	result.Effective = baseFee - result.Rebate
	return result, nil
}
