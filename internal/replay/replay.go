// Package replay makes each signed instruction take effect at most once.
// A claimed instruction hash is stored under "h:"+hash next to the ledger
// state it changes, so the claim commits or rolls back with its effect.
package replay

import (
	"encoding/binary"
	"errors"
	"fmt"

	"DiceVault/internal/ident"
	"DiceVault/internal/storage"
)

var (
	ErrReplayed = errors.New("instruction already executed")
	ErrExpired  = errors.New("instruction expired")
)

// prefix is the key prefix of claimed instruction hashes.
var prefix = []byte("h:")

// Store is the read-write view a claim is staged in.
type Store interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// Ticket identifies one signed instruction and its expiry.
type Ticket struct {
	Hash      ident.Hash // Hash is the instruction hash
	ExpiresAt int64      // ExpiresAt is the last unix second the ticket is valid
}

// IsZero reports whether the ticket is empty. Internal callers without a
// signed instruction pass a zero ticket and claim nothing.
func (t Ticket) IsZero() bool {
	return t.Hash.IsZero()
}

// Claim stages the ticket in s. It fails if the ticket expired before now or
// was already claimed.
func (t Ticket) Claim(s Store, now int64) error {
	if t.ExpiresAt < now {
		return fmt.Errorf("%w: %s at %d, now %d", ErrExpired, t.Hash.Short(), t.ExpiresAt, now)
	}

	key := Key(t.Hash)

	existing, err := s.Get(key)
	if err != nil {
		return fmt.Errorf("load claim:\n%w", err)
	}

	if existing != nil {
		return fmt.Errorf("%w: %s", ErrReplayed, t.Hash.Short())
	}

	var value [8]byte
	binary.LittleEndian.PutUint64(value[:], uint64(t.ExpiresAt))

	return s.Set(key, value[:])
}

// Key returns the storage key of a claimed hash.
func Key(hash ident.Hash) []byte {
	key := make([]byte, 0, len(prefix)+ident.Size)
	key = append(key, prefix...)

	return append(key, hash[:]...)
}

// Prune deletes claims that expired before now and returns how many it removed.
// An expired instruction fails Claim on its own, so its record is no longer
// needed. now must come from the same non-decreasing clock as Claim.
func Prune(db *storage.Storage, now int64) (int, error) {
	var stale [][]byte

	err := db.IteratePrefix(prefix, func(key, value []byte) error {
		if len(value) != 8 {
			return fmt.Errorf("claim %x: value size %d", key, len(value))
		}

		if int64(binary.LittleEndian.Uint64(value)) < now {
			stale = append(stale, append([]byte(nil), key...))
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan claims:\n%w", err)
	}

	for _, key := range stale {
		if err := db.Delete(key); err != nil {
			return 0, fmt.Errorf("delete claim:\n%w", err)
		}
	}

	return len(stale), nil
}
