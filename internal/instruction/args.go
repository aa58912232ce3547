package instruction

import (
	"encoding/binary"
	"errors"
	"fmt"

	"DiceVault/internal/ident"
)

var ErrArgs = errors.New("invalid arguments")

// EncodeInitializeArgs encodes initialize arguments in Borsh format.
// Format: u8 nonce
func EncodeInitializeArgs(nonce uint8) []byte {
	return []byte{nonce}
}

// DecodeInitializeArgs decodes initialize arguments.
func DecodeInitializeArgs(data []byte) (uint8, error) {
	if len(data) != 1 {
		return 0, fmt.Errorf("%w: initialize wants 1 byte, got %d", ErrArgs, len(data))
	}

	return data[0], nil
}

// EncodeRollArgs encodes roll arguments in Borsh format.
// Format: u64 amount (little-endian) + u8 side
func EncodeRollArgs(amount uint64, side uint8) []byte {
	buf := make([]byte, 8+1)
	binary.LittleEndian.PutUint64(buf[0:8], amount)
	buf[8] = side

	return buf
}

// DecodeRollArgs decodes roll arguments.
func DecodeRollArgs(data []byte) (amount uint64, side uint8, err error) {
	if len(data) != 9 {
		return 0, 0, fmt.Errorf("%w: roll wants 9 bytes, got %d", ErrArgs, len(data))
	}

	return binary.LittleEndian.Uint64(data[0:8]), data[8], nil
}

// EncodeTransferArgs encodes transfer arguments in Borsh format.
// Format: u64 amount (little-endian)
func EncodeTransferArgs(amount uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, amount)

	return buf
}

// DecodeTransferArgs decodes transfer arguments.
func DecodeTransferArgs(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: transfer wants 8 bytes, got %d", ErrArgs, len(data))
	}

	return binary.LittleEndian.Uint64(data), nil
}

// EncodeOpenAccountArgs encodes open_account arguments in Borsh format.
// Format: [u8; 32] mint, followed by [u8; 32] owner unless owner is zero.
// A zero owner means the sender owns the account.
func EncodeOpenAccountArgs(mint, owner ident.Hash) []byte {
	buf := append([]byte(nil), mint[:]...)
	if !owner.IsZero() {
		buf = append(buf, owner[:]...)
	}

	return buf
}

// DecodeOpenAccountArgs decodes open_account arguments. owner is zero when absent.
func DecodeOpenAccountArgs(data []byte) (mint, owner ident.Hash, err error) {
	switch len(data) {
	case ident.Size:
		copy(mint[:], data)
	case 2 * ident.Size:
		copy(mint[:], data[:ident.Size])
		copy(owner[:], data[ident.Size:])
	default:
		return ident.Hash{}, ident.Hash{}, fmt.Errorf("%w: open_account wants 32 or 64 bytes, got %d", ErrArgs, len(data))
	}

	return mint, owner, nil
}
