package events

import (
	"encoding/hex"
	"strconv"

	"cpswap/core/types"
	"cpswap/crypto"
)

const (
	// TypeDiscountCreated marks the materialisation of a participant's discount record.
	TypeDiscountCreated = "discount.created"
	// TypeDiscountUpdated marks an administrative overwrite of a discount numerator.
	TypeDiscountUpdated = "discount.updated"
)

// DiscountCreated is emitted once per participant when the record is allocated.
type DiscountCreated struct {
	User   [20]byte
	Record [32]byte
	Bump   uint8
	Payer  [20]byte
}

// EventType satisfies the events.Event interface.
func (DiscountCreated) EventType() string { return TypeDiscountCreated }

// Event converts the payload to the generic representation.
func (e DiscountCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeDiscountCreated,
		Attributes: map[string]string{
			"user":   crypto.FormatAccount(e.User),
			"record": hex.EncodeToString(e.Record[:]),
			"bump":   strconv.FormatUint(uint64(e.Bump), 10),
			"payer":  crypto.FormatAccount(e.Payer),
		},
	}
}

// DiscountUpdated is emitted after a successful discount write.
type DiscountUpdated struct {
	User        [20]byte
	Record      [32]byte
	Authority   [20]byte
	Previous    uint64
	Numerator   uint64
	Denominator uint64
}

// EventType satisfies the events.Event interface.
func (DiscountUpdated) EventType() string { return TypeDiscountUpdated }

// Event converts the payload to the generic representation.
func (e DiscountUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeDiscountUpdated,
		Attributes: map[string]string{
			"user":        crypto.FormatAccount(e.User),
			"record":      hex.EncodeToString(e.Record[:]),
			"authority":   crypto.FormatAccount(e.Authority),
			"previous":    strconv.FormatUint(e.Previous, 10),
			"numerator":   strconv.FormatUint(e.Numerator, 10),
			"denominator": strconv.FormatUint(e.Denominator, 10),
		},
	}
}
