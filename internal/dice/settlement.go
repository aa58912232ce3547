package dice

import (
	"fmt"

	"github.com/google/uuid"

	"DiceVault/internal/ident"
	"DiceVault/internal/replay"
)

const (
	noticeWon      = "Congratulations, You won!"
	noticeDegraded = "Congratulations, You won! Sry, we didn't have enough reward to gib you. So, we'll gib you all the remaining reward in the vault"
	noticeLost     = "Sorry, You lost!"
)

// Outcome tags how a settlement ended.
type Outcome uint8

const (
	OutcomeLost         Outcome = iota // OutcomeLost keeps the stake in the vault
	OutcomePaid                        // OutcomePaid pays the full formula amount
	OutcomePaidDegraded                // OutcomePaidDegraded pays the whole vault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLost:
		return "lost"
	case OutcomePaid:
		return "paid"
	case OutcomePaidDegraded:
		return "paid_degraded"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// MarshalText encodes the outcome name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "lost":
		*o = OutcomeLost
	case "paid":
		*o = OutcomePaid
	case "paid_degraded":
		*o = OutcomePaidDegraded
	default:
		return fmt.Errorf("unknown outcome %q", text)
	}

	return nil
}

// Won reports whether the outcome paid anything.
func (o Outcome) Won() bool {
	return o == OutcomePaid || o == OutcomePaidDegraded
}

// notice returns the participant-facing message for the outcome.
func (o Outcome) notice() string {
	switch o {
	case OutcomePaid:
		return noticeWon
	case OutcomePaidDegraded:
		return noticeDegraded
	default:
		return noticeLost
	}
}

// Settlement is the result of one committed roll.
type Settlement struct {
	ID           uuid.UUID  `json:"id"`
	Pool         ident.Hash `json:"pool"`
	Outcome      Outcome    `json:"outcome"`
	Stake        uint64     `json:"stake"`
	Side         uint8      `json:"side"`
	Payout       uint64     `json:"payout"`
	Timestamp    int64      `json:"timestamp"`
	Notice       string     `json:"notice"`
	VaultBalance uint64     `json:"vaultBalance"`
}

// InitializeRequest binds a pool to its mint and vault.
type InitializeRequest struct {
	Pool    ident.Hash    // Pool is the pool identity
	Creator ident.Hash    // Creator is the authenticated caller key and must equal Pool
	Nonce   uint8         // Nonce makes Derive(Pool, Nonce) fall off the curve
	Mint    ident.Hash    // Mint is the token type of every escrow and payout
	Vault   ident.Hash    // Vault is the account owned by the derived authority
	Ticket  replay.Ticket // Ticket is claimed in the same unit (optional)
}

// RollRequest is one wager.
type RollRequest struct {
	Pool      ident.Hash    // Pool is the pool identity
	Player    ident.Hash    // Player is the authenticated caller key
	Source    ident.Hash    // Source is the player's account, debited and paid
	Vault     ident.Hash    // Vault must equal the pool's vault reference
	Authority ident.Hash    // Authority must equal the re-derived authority
	Amount    uint64        // Amount is the stake
	Side      uint8         // Side is in [0, MaxSide]
	Ticket    replay.Ticket // Ticket is claimed in the same unit (optional)
}
