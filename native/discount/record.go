package discount

import (
	"bytes"
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// DiscriminatorLen is the width of the account type tag that prefixes
	// every serialized record.
	DiscriminatorLen = 8
	numeratorLen     = 8
	bumpLen          = 1

	// RecordLen is the fixed serialized size of a UserDiscount record.
	RecordLen = DiscriminatorLen + numeratorLen + bumpLen
)

// recordDiscriminator tags serialized UserDiscount records.
var recordDiscriminator = func() [DiscriminatorLen]byte {
	var out [DiscriminatorLen]byte
	copy(out[:], ethcrypto.Keccak256([]byte("account:UserDiscount")))
	return out
}()

// UserDiscount is one participant's fee discount. The discount fraction is
// DiscountNumerator / fees.FeeRateDenominator. Bump is the disambiguation byte
// that finalised the record's address.
type UserDiscount struct {
	DiscountNumerator uint64
	Bump              uint8
}

// Encode serialises the record into its fixed RecordLen layout:
// discriminator | numerator (little endian) | bump.
func (u UserDiscount) Encode() []byte {
	buf := make([]byte, RecordLen)
	copy(buf, recordDiscriminator[:])
	binary.LittleEndian.PutUint64(buf[DiscriminatorLen:], u.DiscountNumerator)
	buf[DiscriminatorLen+numeratorLen] = u.Bump
	return buf
}

// DecodeUserDiscount parses a serialized record.
func DecodeUserDiscount(data []byte) (UserDiscount, error) {
	if len(data) != RecordLen {
		return UserDiscount{}, fmt.Errorf("%w: length %d, want %d", ErrRecordCorrupt, len(data), RecordLen)
	}
	if !bytes.Equal(data[:DiscriminatorLen], recordDiscriminator[:]) {
		return UserDiscount{}, fmt.Errorf("%w: discriminator mismatch", ErrRecordCorrupt)
	}
	return UserDiscount{
		DiscountNumerator: binary.LittleEndian.Uint64(data[DiscriminatorLen:]),
		Bump:              data[DiscriminatorLen+numeratorLen],
	}, nil
}
