package crypto

import (
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestAccountRoundTrip(t *testing.T) {
	var id [AddressLength]byte
	id[0] = 0xAB
	id[19] = 0x01
	encoded := FormatAccount(id)
	decoded, err := ParseAccount(encoded)
	if err != nil {
		t.Fatalf("parse account: %v", err)
	}
	if decoded != id {
		t.Fatalf("round trip mismatch: %x != %x", decoded, id)
	}
}

func TestParseAccountRejectsForeignPrefix(t *testing.T) {
	addr := MustNewAddress(AddressPrefix("xyz"), make([]byte, AddressLength))
	if _, err := ParseAccount(addr.String()); err == nil {
		t.Fatalf("expected prefix mismatch error")
	}
}

func TestNewAddressLength(t *testing.T) {
	if _, err := NewAddress(AccountPrefix, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestSignAndRecover(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := ethcrypto.Keccak256([]byte("payload"))
	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	signer, err := RecoverSigner(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if signer != key.PubKey().Address().Array() {
		t.Fatalf("recovered signer mismatch")
	}
	if _, err := RecoverSigner(digest, sig[:10]); err == nil {
		t.Fatalf("expected error for truncated signature")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "admin.json")
	if err := SaveToKeystore(path, key, "secret", WithLightScrypt()); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if loaded.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("keystore returned a different key")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
