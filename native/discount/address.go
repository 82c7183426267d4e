package discount

import (
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DomainTag separates discount record addresses from every other derived
// address of the program.
const DomainTag = "user_discount"

const addressMarker = "DeterministicAddress"

// ProgramID identifies the swap program that owns discount records.
var ProgramID = func() [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte("cpswap/program")))
	return out
}()

// Address is the storage location of a discount record.
type Address [32]byte

// Hex renders the address as lowercase hex without a prefix.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return "0x" + a.Hex()
}

// ParseAddress accepts a 64-character hex string with optional 0x prefix.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("discount: decode record address: %w", err)
	}
	if len(decoded) != len(Address{}) {
		return Address{}, fmt.Errorf("discount: record address must be %d bytes", len(Address{}))
	}
	var out Address
	copy(out[:], decoded)
	return out, nil
}

// CreateAddress hashes the domain tag, user identity and bump into a record
// address. The digest is only accepted when it is not the x-coordinate of a
// secp256k1 point, which guarantees no private key can sign for it.
func CreateAddress(user [20]byte, bump uint8) (Address, error) {
	digest := ethcrypto.Keccak256(
		[]byte(DomainTag),
		user[:],
		[]byte{bump},
		ProgramID[:],
		[]byte(addressMarker),
	)
	if onCurve(digest) {
		return Address{}, ErrInvalidSeeds
	}
	var out Address
	copy(out[:], digest)
	return out, nil
}

// FindAddress searches bumps from 255 downwards and returns the first valid
// address. It runs once when the record is created; afterwards the stored
// bump is used directly.
func FindAddress(user [20]byte) (Address, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := CreateAddress(user, uint8(bump))
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return Address{}, 0, ErrNoViableBump
}

// VerifyAddress re-derives the address with the persisted bump and compares it
// to the supplied handle.
func VerifyAddress(user [20]byte, bump uint8, addr Address) error {
	derived, err := CreateAddress(user, bump)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAddressMismatch, err)
	}
	if derived != addr {
		return ErrAddressMismatch
	}
	return nil
}

func onCurve(x []byte) bool {
	compressed := make([]byte, 0, 33)
	compressed = append(compressed, 0x02)
	compressed = append(compressed, x...)
	_, err := ethcrypto.DecompressPubkey(compressed)
	return err == nil
}
