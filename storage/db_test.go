package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	key := []byte("discount/record/abc")

	if _, err := db.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}
	if ok, err := db.Has(key); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := db.Put(key, []byte{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != string([]byte{1, 2, 3}) {
		t.Fatalf("unexpected value %x", value)
	}
	if ok, err := db.Has(key); err != nil || !ok {
		t.Fatalf("expected key present, got ok=%v err=%v", ok, err)
	}
	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	exerciseIterate(t, db)
}

func exerciseIterate(t *testing.T, db Database) {
	t.Helper()
	for _, key := range []string{"replay/03", "replay/01", "other/00", "replay/02"} {
		if err := db.Put([]byte(key), []byte(key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	var seen []string
	err := db.Iterate([]byte("replay/"), func(key, value []byte) bool {
		if string(key) != string(value) {
			t.Fatalf("value mismatch for %s: %s", key, value)
		}
		seen = append(seen, string(key))
		return true
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if strings.Join(seen, ",") != "replay/01,replay/02,replay/03" {
		t.Fatalf("unexpected iteration order %v", seen)
	}

	seen = seen[:0]
	if err := db.Iterate([]byte("replay/"), func(key, _ []byte) bool {
		seen = append(seen, string(key))
		return false
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 1 || seen[0] != "replay/01" {
		t.Fatalf("iteration did not stop early: %v", seen)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	buf := []byte{9}
	if err := db.Put([]byte("k"), buf); err != nil {
		t.Fatalf("put: %v", err)
	}
	buf[0] = 7
	value, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value[0] != 9 {
		t.Fatalf("stored value aliased caller buffer")
	}
}

func TestLevelDB(t *testing.T) {
	db, err := Open(BackendLevelDB, filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestBoltDB(t *testing.T) {
	db, err := Open(BackendBolt, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("rocks", t.TempDir()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
