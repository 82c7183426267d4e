// Package replay remembers signed update digests until they expire so a
// captured request cannot be resubmitted, including across restarts.
package replay

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"cpswap/storage"
)

const (
	digestPrefix = "discount/replay/digest/"
	expiryPrefix = "discount/replay/expiry/"

	defaultPruneInterval = 60
)

// Store persists claimed digests in a storage.Database. Each claim writes the
// digest keyed entry and an expiry index entry ordered by expiry so pruning
// only visits expired claims.
type Store struct {
	db storage.Database

	mu            sync.Mutex
	pruneInterval int64
	lastPruned    int64
}

// New wraps db.
func New(db storage.Database) (*Store, error) {
	if db == nil {
		return nil, errors.New("replay: storage required")
	}
	return &Store{db: db, pruneInterval: defaultPruneInterval}, nil
}

func digestKey(digest []byte) []byte {
	return []byte(digestPrefix + hex.EncodeToString(digest))
}

func expiryKey(expiry int64, digest []byte) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", expiryPrefix, expiry, hex.EncodeToString(digest)))
}

func parseExpiryKey(key []byte) (int64, []byte, bool) {
	raw := strings.TrimPrefix(string(key), expiryPrefix)
	ts, encoded, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, nil, false
	}
	expiry, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, nil, false
	}
	digest, err := hex.DecodeString(encoded)
	if err != nil {
		return 0, nil, false
	}
	return expiry, digest, true
}

// Claim records digest until expiry and reports whether it was unused at now.
// A digest whose earlier claim has expired may be claimed again.
func (s *Store) Claim(digest []byte, expiry, now int64) (bool, error) {
	if len(digest) == 0 {
		return false, errors.New("replay: digest required")
	}
	if expiry < 0 {
		return false, errors.New("replay: negative expiry")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if now-s.lastPruned >= s.pruneInterval {
		if _, err := s.pruneLocked(now); err != nil {
			return false, err
		}
		s.lastPruned = now
	}

	existing, err := s.db.Get(digestKey(digest))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("replay: load digest: %w", err)
	case len(existing) == 8 && int64(binary.BigEndian.Uint64(existing)) >= now:
		return false, nil
	}

	// Index first: a crash between the writes leaves an orphan index entry
	// that pruning removes.
	if err := s.db.Put(expiryKey(expiry, digest), nil); err != nil {
		return false, fmt.Errorf("replay: index digest: %w", err)
	}
	value := binary.BigEndian.AppendUint64(nil, uint64(expiry))
	if err := s.db.Put(digestKey(digest), value); err != nil {
		return false, fmt.Errorf("replay: record digest: %w", err)
	}
	return true, nil
}

// Release forgets a claim whose update did not commit so it can be retried.
func (s *Store) Release(digest []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := digestKey(digest)
	existing, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("replay: load digest: %w", err)
	}
	if err := s.db.Delete(key); err != nil {
		return fmt.Errorf("replay: delete digest: %w", err)
	}
	if len(existing) == 8 {
		expiry := int64(binary.BigEndian.Uint64(existing))
		if err := s.db.Delete(expiryKey(expiry, digest)); err != nil {
			return fmt.Errorf("replay: delete index: %w", err)
		}
	}
	return nil
}

// Prune deletes claims that expired before now and returns how many it
// removed.
func (s *Store) Prune(now int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(now)
}

func (s *Store) pruneLocked(now int64) (int, error) {
	type expired struct {
		index  []byte
		digest []byte
		expiry int64
	}
	var stale []expired
	err := s.db.Iterate([]byte(expiryPrefix), func(key, _ []byte) bool {
		expiry, digest, ok := parseExpiryKey(key)
		if !ok {
			stale = append(stale, expired{index: key})
			return true
		}
		if expiry >= now {
			return false
		}
		stale = append(stale, expired{index: key, digest: digest, expiry: expiry})
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("replay: scan expiry index: %w", err)
	}
	for _, entry := range stale {
		if entry.digest != nil {
			// A digest reclaimed with a later expiry keeps its entry.
			current, err := s.db.Get(digestKey(entry.digest))
			if err == nil && len(current) == 8 && int64(binary.BigEndian.Uint64(current)) == entry.expiry {
				if err := s.db.Delete(digestKey(entry.digest)); err != nil {
					return 0, fmt.Errorf("replay: delete digest: %w", err)
				}
			}
		}
		if err := s.db.Delete(entry.index); err != nil {
			return 0, fmt.Errorf("replay: delete index: %w", err)
		}
	}
	return len(stale), nil
}
