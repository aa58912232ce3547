package journal

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"DiceVault/internal/ident"
)

// Row is the text form of a receipt shared by the SQL backends.
// Amounts are kept as decimal text because SQL integers stop at int64.
type Row struct {
	ID           string
	Pool         string
	Player       string
	Source       string
	Amount       string
	Side         int
	Timestamp    int64
	Outcome      string
	Payout       string
	VaultBalance string
}

// ToRow flattens a receipt.
func ToRow(r Receipt) Row {
	return Row{
		ID:           r.ID.String(),
		Pool:         r.Pool.String(),
		Player:       r.Player.String(),
		Source:       r.Source.String(),
		Amount:       strconv.FormatUint(r.Amount, 10),
		Side:         int(r.Side),
		Timestamp:    r.Timestamp,
		Outcome:      r.Outcome,
		Payout:       strconv.FormatUint(r.Payout, 10),
		VaultBalance: strconv.FormatUint(r.VaultBalance, 10),
	}
}

// FromRow parses a row back into a receipt. CreatedAt is left to the caller.
func FromRow(row Row) (Receipt, error) {
	var r Receipt
	var err error

	if r.ID, err = uuid.Parse(row.ID); err != nil {
		return Receipt{}, fmt.Errorf("parse id:\n%w", err)
	}

	for _, f := range []struct {
		dst *ident.Hash
		src string
	}{{&r.Pool, row.Pool}, {&r.Player, row.Player}, {&r.Source, row.Source}} {
		if *f.dst, err = ident.Parse(f.src); err != nil {
			return Receipt{}, fmt.Errorf("parse hash:\n%w", err)
		}
	}

	for _, f := range []struct {
		dst *uint64
		src string
	}{{&r.Amount, row.Amount}, {&r.Payout, row.Payout}, {&r.VaultBalance, row.VaultBalance}} {
		if *f.dst, err = strconv.ParseUint(f.src, 10, 64); err != nil {
			return Receipt{}, fmt.Errorf("parse amount:\n%w", err)
		}
	}

	if row.Side < 0 || row.Side > 255 {
		return Receipt{}, fmt.Errorf("side out of range: %d", row.Side)
	}

	r.Side = uint8(row.Side)
	r.Timestamp = row.Timestamp
	r.Outcome = row.Outcome

	return r, nil
}
