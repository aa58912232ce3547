package authority

import (
	"errors"

	"filippo.io/edwards25519"
	"github.com/zeebo/blake3"

	"DiceVault/internal/ident"
)

// derivationMarker separates authority derivations from every other blake3 use.
const derivationMarker = "DerivedAuthority"

// ProgramID identifies the settlement program. It is folded into every
// derivation so authorities cannot collide with identities minted elsewhere.
var ProgramID = ident.Hash(blake3.Sum256([]byte("DiceVault/dice/v1")))

var (
	// ErrOnCurve is returned when the derived bytes form a valid ed25519 point,
	// meaning a private key for that identity could exist.
	ErrOnCurve = errors.New("derived authority lies on the ed25519 curve")

	// ErrNoValidNonce is returned when every nonce derives an on-curve point.
	ErrNoValidNonce = errors.New("no valid authority nonce")
)

// Seeds are the inputs of a derivation: the pool identity and its nonce.
type Seeds struct {
	Pool  ident.Hash // Pool is the pool record's identity
	Nonce uint8      // Nonce is the bump that pushes the result off the curve
}

// Derive returns the authority for the seeds. See Derive.
func (s Seeds) Derive() (ident.Hash, error) {
	return Derive(s.Pool, s.Nonce)
}

// Derive computes blake3(pool || nonce || ProgramID || marker).
// The result is rejected when it decodes as an ed25519 point so that no
// keyholder can ever sign for it; only the program can, by re-deriving it.
// Pure: the same inputs always produce the same output.
func Derive(pool ident.Hash, nonce uint8) (ident.Hash, error) {
	hasher := blake3.New()
	hasher.Write(pool[:])
	hasher.Write([]byte{nonce})
	hasher.Write(ProgramID[:])
	hasher.Write([]byte(derivationMarker))

	var out ident.Hash
	hasher.Sum(out[:0])

	if onCurve(out) {
		return ident.Hash{}, ErrOnCurve
	}

	return out, nil
}

// Find returns the canonical authority for a pool: the first nonce,
// walking down from 255, whose derivation is off the curve.
func Find(pool ident.Hash) (ident.Hash, uint8, error) {
	for n := 255; n >= 0; n-- {
		authority, err := Derive(pool, uint8(n))
		if err == nil {
			return authority, uint8(n), nil
		}
	}

	return ident.Hash{}, 0, ErrNoValidNonce
}

// onCurve reports whether b is a canonical encoding of an edwards25519 point.
func onCurve(b ident.Hash) bool {
	_, err := new(edwards25519.Point).SetBytes(b[:])
	return err == nil
}
