package dice

import (
	"errors"

	"DiceVault/internal/replay"
)

var (
	ErrInvalidSide       = errors.New("invalid side")
	ErrZeroAmount        = errors.New("amount must be positive")
	ErrOwnershipMismatch = errors.New("ownership mismatch")
	ErrAuthorityMismatch = errors.New("authority mismatch")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrPoolNotFound      = errors.New("pool not initialized")
	ErrPoolInitialized   = errors.New("pool already initialized")
	ErrPoolSigner        = errors.New("pool key must sign its initialization")
)

// kinds maps each sentinel to its stable name, in match order.
var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidSide, "invalid_side"},
	{ErrZeroAmount, "zero_amount"},
	{ErrOwnershipMismatch, "ownership_mismatch"},
	{ErrAuthorityMismatch, "authority_mismatch"},
	{ErrTransferFailed, "transfer_failed"},
	{ErrPoolNotFound, "pool_not_found"},
	{ErrPoolInitialized, "pool_initialized"},
	{ErrPoolSigner, "pool_signer"},
	{replay.ErrReplayed, "replayed"},
	{replay.ErrExpired, "expired"},
}

// Kind returns the stable name of err's sentinel, "internal" for anything
// else and "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}

	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}

	return "internal"
}
