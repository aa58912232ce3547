package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"DiceVault/internal/ident"
	"DiceVault/internal/journal"
)

const schema = `
CREATE TABLE IF NOT EXISTS settlements (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT    NOT NULL UNIQUE,
	pool          TEXT    NOT NULL,
	player        TEXT    NOT NULL,
	source        TEXT    NOT NULL,
	amount        TEXT    NOT NULL,
	side          INTEGER NOT NULL,
	ts            INTEGER NOT NULL,
	outcome       TEXT    NOT NULL,
	payout        TEXT    NOT NULL,
	vault_balance TEXT    NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS settlements_pool_seq ON settlements (pool, seq);
`

// Journal stores receipts in a SQLite file.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite:\n%w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite:\n%w", err)
	}

	return &Journal{db: db}, nil
}

// Record appends a receipt.
func (j *Journal) Record(ctx context.Context, r journal.Receipt) error {
	row := journal.ToRow(r)

	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO settlements (
			id, pool, player, source, amount, side, ts, outcome, payout, vault_balance, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Pool, row.Player, row.Source, row.Amount, row.Side,
		row.Timestamp, row.Outcome, row.Payout, row.VaultBalance, created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert settlement:\n%w", err)
	}

	return nil
}

// List returns the newest receipts first.
func (j *Journal) List(ctx context.Context, pool ident.Hash, limit int) ([]journal.Receipt, error) {
	query := `
		SELECT id, pool, player, source, amount, side, ts, outcome, payout, vault_balance, created_at
		FROM settlements`
	args := []any{}

	if !pool.IsZero() {
		query += ` WHERE pool = ?`
		args = append(args, pool.String())
	}

	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, journal.ClampLimit(limit))

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query settlements:\n%w", err)
	}
	defer rows.Close()

	var out []journal.Receipt

	for rows.Next() {
		var row journal.Row
		var created int64

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

		r.CreatedAt = time.Unix(0, created)
		out = append(out, r)
	}

	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
