// Package api holds the JSON wire types shared by discountd and its clients.
package api

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"cpswap/native/discount"
)

// UpdateDomain separates signed discount updates from every other message a
// key may sign.
const UpdateDomain = "cpswap/discount/update/v1"

// UpdateDigest is the 32-byte message an authority signs to set user's
// numerator. expiry is a unix timestamp in seconds.
func UpdateDigest(user [20]byte, record discount.Address, numerator uint64, expiry int64) []byte {
	buf := make([]byte, 0, len(UpdateDomain)+20+32+8+8)
	buf = append(buf, UpdateDomain...)
	buf = append(buf, user[:]...)
	buf = append(buf, record[:]...)
	buf = binary.BigEndian.AppendUint64(buf, numerator)
	buf = binary.BigEndian.AppendUint64(buf, uint64(expiry))
	return ethcrypto.Keccak256(buf)
}

// CreateRequest materialises a participant's record. Payer defaults to the
// participant.
type CreateRequest struct {
	Payer string `json:"payer,omitempty"`
}

// UpdateRequest is the body of PUT /v1/discounts/{user}.
type UpdateRequest struct {
	Record    string `json:"record"`
	Numerator uint64 `json:"numerator"`
	Caller    string `json:"caller"`
	Expiry    int64  `json:"expiry"`
	Signature string `json:"signature"`
}

// Discount describes a participant's record.
type Discount struct {
	User         string `json:"user"`
	Record       string `json:"record"`
	Bump         uint8  `json:"bump"`
	Numerator    uint64 `json:"numerator"`
	Denominator  uint64 `json:"denominator"`
	MaxNumerator uint64 `json:"max_numerator"`
}

// Fee is the response of GET /v1/discounts/{user}/fee.
type Fee struct {
	User      string `json:"user"`
	BaseFee   uint64 `json:"base_fee"`
	Rebate    uint64 `json:"rebate"`
	Effective uint64 `json:"effective"`
}

// HistoryEntry is one journaled discount event.
type HistoryEntry struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	User        string `json:"user"`
	Record      string `json:"record"`
	Actor       string `json:"actor"`
	Previous    uint64 `json:"previous"`
	Numerator   uint64 `json:"numerator"`
	Denominator string `json:"denominator,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Error is the JSON error envelope.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
