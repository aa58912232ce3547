package ledger

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"DiceVault/internal/ident"
	"DiceVault/internal/types"
)

// Account is a token balance of one mint, controlled by one owner.
type Account struct {
	ID      ident.Hash `json:"id"`      // ID is the account identifier and storage key
	Owner   ident.Hash `json:"owner"`   // Owner is the only identity that may debit the account
	Mint    ident.Hash `json:"mint"`    // Mint is the token type held
	Balance uint64     `json:"balance"` // Balance is the amount held
	Version uint64     `json:"version"` // Version increments on every balance change
}

// encodeAccount serializes an account as a FlatBuffers Account table.
func encodeAccount(a Account) []byte {
	builder := flatbuffers.NewBuilder(192)

	idVec := builder.CreateByteVector(a.ID[:])
	ownerVec := builder.CreateByteVector(a.Owner[:])
	mintVec := builder.CreateByteVector(a.Mint[:])

	types.AccountStart(builder)
	types.AccountAddId(builder, idVec)
	types.AccountAddOwner(builder, ownerVec)
	types.AccountAddMint(builder, mintVec)
	types.AccountAddBalance(builder, a.Balance)
	types.AccountAddVersion(builder, a.Version)

	offset := types.AccountEnd(builder)
	builder.Finish(offset)

	return builder.FinishedBytes()
}

// decodeAccount parses a serialized Account table.
func decodeAccount(data []byte) (acct Account, retErr error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("malformed account data")
		}
	}()

	if len(data) < 8 {
		return Account{}, fmt.Errorf("account data too short: %d bytes", len(data))
	}

	obj := types.GetRootAsAccount(data, 0)

	id, err := ident.FromBytes(obj.IdBytes())
	if err != nil {
		return Account{}, fmt.Errorf("read id:\n%w", err)
	}

	owner, err := ident.FromBytes(obj.OwnerBytes())
	if err != nil {
		return Account{}, fmt.Errorf("read owner:\n%w", err)
	}

	mint, err := ident.FromBytes(obj.MintBytes())
	if err != nil {
		return Account{}, fmt.Errorf("read mint:\n%w", err)
	}

	return Account{
		ID:      id,
		Owner:   owner,
		Mint:    mint,
		Balance: obj.Balance(),
		Version: obj.Version(),
	}, nil
}
