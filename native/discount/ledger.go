package discount

import (
	"fmt"
)

// storage abstracts the subset of state manager functionality required by the
// discount ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var recordPrefix = []byte("discount/record/")

func recordKey(addr Address) []byte {
	suffix := addr.Hex()
	key := make([]byte, len(recordPrefix)+len(suffix))
	copy(key, recordPrefix)
	copy(key[len(recordPrefix):], suffix)
	return key
}

// Ledger persists UserDiscount records at their derived addresses.
type Ledger struct {
	store storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) withStore() (storage, error) {
	if l == nil || l.store == nil {
		return nil, errLedgerUninitialised
	}
	return l.store, nil
}

// Create materialises a zeroed record for user at its derived address.
func (l *Ledger) Create(user [20]byte) (Address, UserDiscount, error) {
	store, err := l.withStore()
	if err != nil {
		return Address{}, UserDiscount{}, err
	}
	if user == ([20]byte{}) {
		return Address{}, UserDiscount{}, ErrUserRequired
	}
	addr, bump, err := FindAddress(user)
	if err != nil {
		return Address{}, UserDiscount{}, err
	}
	exists, err := store.KVGet(recordKey(addr), nil)
	if err != nil {
		return Address{}, UserDiscount{}, fmt.Errorf("discount: probe record: %w", err)
	}
	if exists {
		return Address{}, UserDiscount{}, ErrRecordExists
	}
	record := UserDiscount{Bump: bump}
	if err := store.KVPut(recordKey(addr), record.Encode()); err != nil {
		return Address{}, UserDiscount{}, fmt.Errorf("discount: persist record: %w", err)
	}
	return addr, record, nil
}

// Load reads the record at addr and checks it was derived for user using its
// persisted bump.
func (l *Ledger) Load(user [20]byte, addr Address) (UserDiscount, error) {
	store, err := l.withStore()
	if err != nil {
		return UserDiscount{}, err
	}
	if user == ([20]byte{}) {
		return UserDiscount{}, ErrUserRequired
	}
	var raw []byte
	ok, err := store.KVGet(recordKey(addr), &raw)
	if err != nil {
		return UserDiscount{}, fmt.Errorf("discount: load record: %w", err)
	}
	if !ok {
		// A handle that does not derive from user at any bump is misuse, not
		// a missing record.
		if expected, _, findErr := FindAddress(user); findErr == nil && expected != addr {
			return UserDiscount{}, ErrAddressMismatch
		}
		return UserDiscount{}, ErrRecordNotFound
	}
	record, err := DecodeUserDiscount(raw)
	if err != nil {
		return UserDiscount{}, err
	}
	if err := VerifyAddress(user, record.Bump, addr); err != nil {
		return UserDiscount{}, err
	}
	return record, nil
}

// Resolve derives user's record address and loads it.
func (l *Ledger) Resolve(user [20]byte) (Address, UserDiscount, error) {
	if user == ([20]byte{}) {
		return Address{}, UserDiscount{}, ErrUserRequired
	}
	addr, _, err := FindAddress(user)
	if err != nil {
		return Address{}, UserDiscount{}, err
	}
	record, err := l.Load(user, addr)
	if err != nil {
		return Address{}, UserDiscount{}, err
	}
	return addr, record, nil
}

// Store overwrites the record at addr. Callers must have loaded it through
// Load so the address binding has already been checked.
func (l *Ledger) Store(addr Address, record UserDiscount) error {
	store, err := l.withStore()
	if err != nil {
		return err
	}
	if err := store.KVPut(recordKey(addr), record.Encode()); err != nil {
		return fmt.Errorf("discount: persist record: %w", err)
	}
	return nil
}
