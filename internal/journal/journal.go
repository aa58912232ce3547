package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"DiceVault/internal/ident"
)

// DefaultLimit caps List when the caller passes a non-positive limit.
const DefaultLimit = 50

// MaxLimit is the largest page List returns.
const MaxLimit = 500

// Receipt records one committed settlement.
type Receipt struct {
	ID           uuid.UUID  `json:"id"`
	Pool         ident.Hash `json:"pool"`
	Player       ident.Hash `json:"player"`
	Source       ident.Hash `json:"source"`
	Amount       uint64     `json:"amount"`
	Side         uint8      `json:"side"`
	Timestamp    int64      `json:"timestamp"`
	Outcome      string     `json:"outcome"`
	Payout       uint64     `json:"payout"`
	VaultBalance uint64     `json:"vaultBalance"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Journal persists settlement receipts outside the ledger.
type Journal interface {
	// Record appends a receipt.
	Record(ctx context.Context, r Receipt) error
	// List returns the newest receipts first. A zero pool lists every pool.
	List(ctx context.Context, pool ident.Hash, limit int) ([]Receipt, error)
	// Close releases the underlying connection.
	Close() error
}

// ClampLimit normalizes a caller-supplied page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Nop discards receipts.
type Nop struct{}

func (Nop) Record(context.Context, Receipt) error { return nil }

func (Nop) List(context.Context, ident.Hash, int) ([]Receipt, error) { return nil, nil }

func (Nop) Close() error { return nil }
