// Package ident holds the 32-byte identifier shared by pools, accounts,
// mints and signing keys.
package ident

import (
	"encoding/hex"
	"fmt"
)

// Size is the byte length of an identifier.
const Size = 32

// Hash is a 32-byte identifier.
type Hash [Size]byte

// String returns the lowercase hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 bytes as hex, for logs.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:8])
}

// IsZero reports whether every byte is zero.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText encodes the hash as hex so JSON carries it as a string.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex string.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}

	*h = parsed

	return nil
}

// Parse decodes a 64-character hex string.
func Parse(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("decode hex:\n%w", err)
	}

	return FromBytes(b)
}

// FromBytes copies exactly Size bytes into a Hash.
func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Size {
		return h, fmt.Errorf("invalid identifier length: got %d, want %d", len(b), Size)
	}

	copy(h[:], b)

	return h, nil
}
