package fees

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// FeeRateDenominator is the protocol-wide denominator for every fee and
	// discount fraction handled by the swap program.
	FeeRateDenominator uint64 = 1_000_000

	// MaxDiscountPercent caps a participant's personal discount.
	MaxDiscountPercent uint64 = 30
)

var (
	// ErrDenominatorZero marks a schedule without a usable denominator.
	ErrDenominatorZero = errors.New("fees: fee rate denominator must be positive")
	// ErrDiscountExceedsCeiling is returned when a discount numerator is above
	// MaxDiscountPercent of the denominator.
	ErrDiscountExceedsCeiling = errors.New("fees: discount exceeds ceiling")
)

// Schedule carries the fee-rate denominator loaded at startup. It is immutable
// once constructed, so concurrent readers need no synchronisation.
type Schedule struct {
	denominator uint64
	ceiling     uint64
}

// NewSchedule validates the denominator and precomputes the discount ceiling.
func NewSchedule(denominator uint64) (Schedule, error) {
	if denominator == 0 {
		return Schedule{}, ErrDenominatorZero
	}
	return Schedule{denominator: denominator, ceiling: discountCeiling(denominator)}, nil
}

// DefaultSchedule returns the schedule for FeeRateDenominator.
func DefaultSchedule() Schedule {
	schedule, _ := NewSchedule(FeeRateDenominator)
	return schedule
}

// discountCeiling computes floor(MaxDiscountPercent * denominator / 100) in
// 256-bit arithmetic so the product cannot wrap.
func discountCeiling(denominator uint64) uint64 {
	product := new(uint256.Int).Mul(uint256.NewInt(MaxDiscountPercent), uint256.NewInt(denominator))
	product.Div(product, uint256.NewInt(100))
	return product.Uint64()
}

// Denominator returns the fee-rate denominator.
func (s Schedule) Denominator() uint64 {
	return s.denominator
}

// MaxDiscountNumerator is the largest numerator ValidateDiscount accepts.
func (s Schedule) MaxDiscountNumerator() uint64 {
	return s.ceiling
}

// ValidateDiscount rejects numerators above the ceiling.
func (s Schedule) ValidateDiscount(numerator uint64) error {
	if s.denominator == 0 {
		return ErrDenominatorZero
	}
	if numerator > s.ceiling {
		return fmt.Errorf("%w: %d > %d", ErrDiscountExceedsCeiling, numerator, s.ceiling)
	}
	return nil
}
