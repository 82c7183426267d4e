package discount

import (
	"errors"

	"cpswap/native/fees"
)

var (
	// ErrUnauthorized marks callers other than the designated administrator.
	ErrUnauthorized = errors.New("discount: caller is not the discount authority")
	// ErrDiscountExceedsCeiling marks numerators above 30% of the fee-rate
	// denominator. It aliases the fee schedule's sentinel so either can be
	// matched with errors.Is.
	ErrDiscountExceedsCeiling = fees.ErrDiscountExceedsCeiling
	// ErrAddressMismatch marks record handles that were not derived from the
	// target identity.
	ErrAddressMismatch = errors.New("discount: record address does not match user")
	// ErrRecordNotFound marks users whose record has not been materialised.
	ErrRecordNotFound = errors.New("discount: record not found")
	// ErrRecordExists is returned when materialising a record twice.
	ErrRecordExists = errors.New("discount: record already exists")
	// ErrRecordCorrupt marks stored bytes that do not decode as a record.
	ErrRecordCorrupt = errors.New("discount: record corrupt")
	// ErrInvalidSeeds marks a derived digest that lies on the curve.
	ErrInvalidSeeds = errors.New("discount: seeds produce an invalid address")
	// ErrNoViableBump is returned when no bump yields a valid address.
	ErrNoViableBump = errors.New("discount: no viable bump seed")
	// ErrUserRequired marks requests with a zero user identity.
	ErrUserRequired = errors.New("discount: user required")

	errEngineUninitialised = errors.New("discount: engine not initialised")
	errLedgerUninitialised = errors.New("discount: ledger not initialised")
)
