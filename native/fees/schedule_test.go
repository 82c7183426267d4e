package fees

import (
	"errors"
	"math"
	"testing"
)

func TestDefaultScheduleCeiling(t *testing.T) {
	schedule := DefaultSchedule()
	if schedule.Denominator() != 1_000_000 {
		t.Fatalf("unexpected denominator %d", schedule.Denominator())
	}
	if schedule.MaxDiscountNumerator() != 300_000 {
		t.Fatalf("expected ceiling 300000, got %d", schedule.MaxDiscountNumerator())
	}
	if err := schedule.ValidateDiscount(300_000); err != nil {
		t.Fatalf("expected 30%% to be accepted: %v", err)
	}
	if err := schedule.ValidateDiscount(0); err != nil {
		t.Fatalf("expected zero to be accepted: %v", err)
	}
	if err := schedule.ValidateDiscount(300_001); !errors.Is(err, ErrDiscountExceedsCeiling) {
		t.Fatalf("expected ErrDiscountExceedsCeiling, got %v", err)
	}
}

func TestScheduleCeilingFloors(t *testing.T) {
	cases := []struct {
		denominator uint64
		ceiling     uint64
	}{
		{denominator: 1, ceiling: 0},
		{denominator: 10, ceiling: 3},
		{denominator: 99, ceiling: 29},
		{denominator: 10_000, ceiling: 3_000},
		{denominator: math.MaxUint64, ceiling: 5534023222112865484},
	}
	for _, tc := range cases {
		schedule, err := NewSchedule(tc.denominator)
		if err != nil {
			t.Fatalf("new schedule %d: %v", tc.denominator, err)
		}
		if got := schedule.MaxDiscountNumerator(); got != tc.ceiling {
			t.Fatalf("denominator %d: expected ceiling %d, got %d", tc.denominator, tc.ceiling, got)
		}
	}
}

func TestNewScheduleRejectsZero(t *testing.T) {
	if _, err := NewSchedule(0); !errors.Is(err, ErrDenominatorZero) {
		t.Fatalf("expected ErrDenominatorZero, got %v", err)
	}
	var zero Schedule
	if err := zero.ValidateDiscount(0); !errors.Is(err, ErrDenominatorZero) {
		t.Fatalf("expected zero-value schedule to be rejected, got %v", err)
	}
}

func TestApplyDiscount(t *testing.T) {
	schedule := DefaultSchedule()

	result, err := schedule.ApplyDiscount(2_500, 300_000)
	if err != nil {
		t.Fatalf("apply discount: %v", err)
	}
	if result.Rebate != 750 || result.Effective != 1_750 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// 7 * 100_000 / 1_000_000 = 0.7 floors to zero rebate.
	result, err = schedule.ApplyDiscount(7, 100_000)
	if err != nil {
		t.Fatalf("apply discount: %v", err)
	}
	if result.Rebate != 0 || result.Effective != 7 {
		t.Fatalf("expected rounding in favour of the pool, got %+v", result)
	}

	result, err = schedule.ApplyDiscount(math.MaxUint64, 300_000)
	if err != nil {
		t.Fatalf("apply discount: %v", err)
	}
	if result.Rebate+result.Effective != math.MaxUint64 {
		t.Fatalf("rebate and effective fee must sum to base fee: %+v", result)
	}

	if _, err := schedule.ApplyDiscount(1_000, 300_001); !errors.Is(err, ErrDiscountExceedsCeiling) {
		t.Fatalf("expected ceiling error, got %v", err)
	}
}
