package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"DiceVault/internal/ident"
	"DiceVault/internal/journal"
)

const schema = `
CREATE TABLE IF NOT EXISTS settlements (
	seq           BIGSERIAL PRIMARY KEY,
	id            TEXT        NOT NULL UNIQUE,
	pool          TEXT        NOT NULL,
	player        TEXT        NOT NULL,
	source        TEXT        NOT NULL,
	amount        TEXT        NOT NULL,
	side          INTEGER     NOT NULL,
	ts            BIGINT      NOT NULL,
	outcome       TEXT        NOT NULL,
	payout        TEXT        NOT NULL,
	vault_balance TEXT        NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS settlements_pool_seq ON settlements (pool, seq);
`

// Journal stores receipts in Postgres.
type Journal struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and migrates the schema.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres:\n%w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres:\n%w", err)
	}

	return &Journal{pool: pool}, nil
}

// Record appends a receipt.
func (j *Journal) Record(ctx context.Context, r journal.Receipt) error {
	row := journal.ToRow(r)

	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := j.pool.Exec(ctx, `
		INSERT INTO settlements (
			id, pool, player, source, amount, side, ts, outcome, payout, vault_balance, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		row.ID, row.Pool, row.Player, row.Source, row.Amount, row.Side,
		row.Timestamp, row.Outcome, row.Payout, row.VaultBalance, created,
	)
	if err != nil {
		return fmt.Errorf("insert settlement:\n%w", err)
	}

	return nil
}

// List returns the newest receipts first.
func (j *Journal) List(ctx context.Context, pool ident.Hash, limit int) ([]journal.Receipt, error) {
	var rows pgx.Rows
	var err error

	const columns = `id, pool, player, source, amount, side, ts, outcome, payout, vault_balance, created_at`

	if pool.IsZero() {
		rows, err = j.pool.Query(ctx,
			`SELECT `+columns+` FROM settlements ORDER BY seq DESC LIMIT $1`,
			journal.ClampLimit(limit))
	} else {
		rows, err = j.pool.Query(ctx,
			`SELECT `+columns+` FROM settlements WHERE pool = $1 ORDER BY seq DESC LIMIT $2`,
			pool.String(), journal.ClampLimit(limit))
	}
	if err != nil {
		return nil, fmt.Errorf("query settlements:\n%w", err)
	}
	defer rows.Close()

	var out []journal.Receipt

	for rows.Next() {
		var row journal.Row
		var created time.Time

		if err := rows.Scan(
			&row.ID, &row.Pool, &row.Player, &row.Source, &row.Amount, &row.Side,
			&row.Timestamp, &row.Outcome, &row.Payout, &row.VaultBalance, &created,
		); err != nil {
			return nil, fmt.Errorf("scan settlement:\n%w", err)
		}

		r, err := journal.FromRow(row)
		if err != nil {
			return nil, err
		}

		r.CreatedAt = created
		out = append(out, r)
	}

	return out, rows.Err()
}

// Close closes the connection pool.
func (j *Journal) Close() error {
	j.pool.Close()
	return nil
}
