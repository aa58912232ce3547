package ledger

import (
	"fmt"

	"DiceVault/internal/authority"
	"DiceVault/internal/ident"
)

// Authorizer is the proof attached to a debit.
// A Signed authorizer carries a key whose signature was verified upstream.
// A Derived authorizer carries seeds; the ledger re-derives the identity
// itself, so a caller can never name an authority it cannot derive.
type Authorizer struct {
	signer ident.Hash
	seeds  *authority.Seeds
}

// Signed returns an authorizer for a verified signer key.
func Signed(key ident.Hash) Authorizer {
	return Authorizer{signer: key}
}

// Derived returns an authorizer that signs with a program-derived authority.
func Derived(seeds authority.Seeds) Authorizer {
	return Authorizer{seeds: &seeds}
}

// Identity resolves the identity this authorizer speaks for.
func (a Authorizer) Identity() (ident.Hash, error) {
	if a.seeds == nil {
		return a.signer, nil
	}

	id, err := a.seeds.Derive()
	if err != nil {
		return ident.Hash{}, fmt.Errorf("derive authority:\n%w", err)
	}

	return id, nil
}

// String describes the authorizer for logs.
func (a Authorizer) String() string {
	if a.seeds == nil {
		return "signed:" + a.signer.Short()
	}

	return fmt.Sprintf("derived:%s/%d", a.seeds.Pool.Short(), a.seeds.Nonce)
}
