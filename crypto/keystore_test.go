package crypto

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

func TestSaveToKeystoreReplacesExistingFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "keys")
	path := filepath.Join(dir, "operator.json")

	first, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	second, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := SaveToKeystore(path, first, "pw", WithLightScrypt()); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := SaveToKeystore(path, second, "pw", WithLightScrypt()); err != nil {
		t.Fatalf("save second: %v", err)
	}

	loaded, err := LoadFromKeystore(path, "pw")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address().Array() != second.PubKey().Address().Array() {
		t.Fatalf("keystore kept the old key")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the keystore file, found %d entries", len(entries))
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Fatalf("keystore mode = %o, want 600", perm)
		}
	}
}

func TestLoadFromKeystoreWrapsDecryptFailure(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "k.json")
	if err := SaveToKeystore(path, key, "right", WithLightScrypt()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := LoadFromKeystore(path, "wrong"); !errors.Is(err, keystore.ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestSaveToKeystoreRejectsBadInput(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := SaveToKeystore(filepath.Join(t.TempDir(), "k.json"), nil, "pw"); !errors.Is(err, errNilKey) {
		t.Fatalf("expected errNilKey, got %v", err)
	}
	if err := SaveToKeystore("", key, "pw"); !errors.Is(err, errEmptyKeyPath) {
		t.Fatalf("expected errEmptyKeyPath, got %v", err)
	}
	if _, err := LoadFromKeystore("", "pw"); !errors.Is(err, errEmptyKeyPath) {
		t.Fatalf("expected errEmptyKeyPath, got %v", err)
	}
}
