package pool

import (
	"errors"
	"fmt"

	"DiceVault/internal/ident"
)

// RecordSize is the exact persisted size of a pool record:
// payout_percent u8 | token_type [32] | vault_reference [32] | authority_nonce u8.
const RecordSize = 1 + ident.Size + ident.Size + 1

// keyPrefix is the Pebble key prefix for pool records.
var keyPrefix = []byte("p:")

var ErrRecordSize = errors.New("invalid pool record size")

// Pool is the persistent configuration of one wager pool.
type Pool struct {
	PayoutPercent uint8      `json:"payoutPercent"`
	TokenMint     ident.Hash `json:"tokenMint"`
	Vault         ident.Hash `json:"vault"`
	Nonce         uint8      `json:"nonce"`
}

// IsZero reports whether the record is zeroed, i.e. never initialized.
func (p Pool) IsZero() bool {
	return p == Pool{}
}

// Encode serializes the pool in its fixed little-endian field order.
func (p Pool) Encode() []byte {
	buf := make([]byte, RecordSize)

	buf[0] = p.PayoutPercent
	copy(buf[1:33], p.TokenMint[:])
	copy(buf[33:65], p.Vault[:])
	buf[65] = p.Nonce

	return buf
}

// Decode parses a pool record.
func Decode(data []byte) (Pool, error) {
	if len(data) != RecordSize {
		return Pool{}, fmt.Errorf("%w: got %d, want %d", ErrRecordSize, len(data), RecordSize)
	}

	var p Pool
	p.PayoutPercent = data[0]
	copy(p.TokenMint[:], data[1:33])
	copy(p.Vault[:], data[33:65])
	p.Nonce = data[65]

	return p, nil
}

// Reader reads raw records. Satisfied by storage.Storage and ledger.Tx.
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// Writer stages raw records. Satisfied by storage.Storage and ledger.Tx.
type Writer interface {
	Reader
	Set(key, value []byte) error
}

// Load reads the pool stored under id. An absent record is returned zeroed.
func Load(r Reader, id ident.Hash) (Pool, error) {
	data, err := r.Get(Key(id))
	if err != nil {
		return Pool{}, fmt.Errorf("read pool %s:\n%w", id.Short(), err)
	}

	if data == nil {
		return Pool{}, nil
	}

	return Decode(data)
}

// Save writes the pool under id.
func Save(w Writer, id ident.Hash, p Pool) error {
	if err := w.Set(Key(id), p.Encode()); err != nil {
		return fmt.Errorf("write pool %s:\n%w", id.Short(), err)
	}

	return nil
}

// Key builds the Pebble key for a pool: "p:" + pool id.
func Key(id ident.Hash) []byte {
	key := make([]byte, len(keyPrefix)+ident.Size)
	copy(key, keyPrefix)
	copy(key[len(keyPrefix):], id[:])

	return key
}
