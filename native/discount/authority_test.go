package discount

import (
	"errors"
	"testing"
)

func TestStrictAuthority(t *testing.T) {
	admin := testUser(0xAD)
	auth := StrictAuthority{Admin: admin}
	if err := auth.Authorize(admin); err != nil {
		t.Fatalf("expected admin to be authorised: %v", err)
	}
	if err := auth.Authorize(testUser(0x01)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := (StrictAuthority{}).Authorize([20]byte{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unset admin must not authorise the zero address, got %v", err)
	}
}

func TestNewAuthorityModes(t *testing.T) {
	admin := testUser(0xAD)
	strict, err := NewAuthority("", admin)
	if err != nil {
		t.Fatalf("default mode: %v", err)
	}
	if _, ok := strict.(StrictAuthority); !ok {
		t.Fatalf("expected strict authority by default, got %T", strict)
	}
	if _, err := NewAuthority(AuthorityStrict, [20]byte{}); err == nil {
		t.Fatalf("expected strict mode without admin to fail")
	}
	permissive, err := NewAuthority(" Permissive ", [20]byte{})
	if err != nil {
		t.Fatalf("permissive mode: %v", err)
	}
	if err := permissive.Authorize(testUser(0x07)); err != nil {
		t.Fatalf("permissive authority rejected caller: %v", err)
	}
	if _, err := NewAuthority("open", admin); err == nil {
		t.Fatalf("expected unknown mode to fail")
	}
}
