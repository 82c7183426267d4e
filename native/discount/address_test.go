package discount

import (
	"errors"
	"testing"
)

func testUser(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func TestFindAddressDeterministic(t *testing.T) {
	user := testUser(0x11)
	first, bump, err := FindAddress(user)
	if err != nil {
		t.Fatalf("find address: %v", err)
	}
	second, bumpAgain, err := FindAddress(user)
	if err != nil {
		t.Fatalf("find address: %v", err)
	}
	if first != second || bump != bumpAgain {
		t.Fatalf("derivation is not deterministic")
	}
	direct, err := CreateAddress(user, bump)
	if err != nil {
		t.Fatalf("create address with found bump: %v", err)
	}
	if direct != first {
		t.Fatalf("create address disagrees with find address")
	}
	for higher := int(bump) + 1; higher <= 255; higher++ {
		if _, err := CreateAddress(user, uint8(higher)); !errors.Is(err, ErrInvalidSeeds) {
			t.Fatalf("bump %d should have been invalid, got %v", higher, err)
		}
	}
}

func TestFindAddressDistinctUsers(t *testing.T) {
	seen := make(map[Address][20]byte)
	for i := 1; i <= 32; i++ {
		user := testUser(byte(i))
		addr, _, err := FindAddress(user)
		if err != nil {
			t.Fatalf("find address: %v", err)
		}
		if prev, ok := seen[addr]; ok {
			t.Fatalf("users %x and %x collide", prev, user)
		}
		seen[addr] = user
	}
}

func TestVerifyAddress(t *testing.T) {
	alice := testUser(0xA1)
	bob := testUser(0xB0)
	aliceAddr, aliceBump, err := FindAddress(alice)
	if err != nil {
		t.Fatalf("find address: %v", err)
	}
	if err := VerifyAddress(alice, aliceBump, aliceAddr); err != nil {
		t.Fatalf("expected alice's handle to verify: %v", err)
	}
	if err := VerifyAddress(bob, aliceBump, aliceAddr); !errors.Is(err, ErrAddressMismatch) {
		t.Fatalf("expected ErrAddressMismatch for bob, got %v", err)
	}
}

func TestParseAddress(t *testing.T) {
	addr, _, err := FindAddress(testUser(0x42))
	if err != nil {
		t.Fatalf("find address: %v", err)
	}
	parsed, err := ParseAddress(addr.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != addr {
		t.Fatalf("parse round trip mismatch")
	}
	if _, err := ParseAddress(addr.Hex()[:10]); err == nil {
		t.Fatalf("expected short address to fail")
	}
	if _, err := ParseAddress("zz"); err == nil {
		t.Fatalf("expected invalid hex to fail")
	}
}
