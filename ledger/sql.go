package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// Schema creates the payments table used by SQL.
const Schema = `
CREATE TABLE IF NOT EXISTS payments (
	payment_id TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	tx_hash    TEXT,
	payer      TEXT NOT NULL,
	pay_to     TEXT NOT NULL,
	amount     TEXT NOT NULL,
	asset      TEXT NOT NULL DEFAULT '',
	network    TEXT NOT NULL,
	settled_at TIMESTAMP NOT NULL
)`

const selectColumns = `payment_id, status, tx_hash, payer, pay_to, amount, asset, network, settled_at`

// SQL is a ledger stored in Postgres or SQLite. The primary key on
// payment_id makes Insert atomic across processes. Settlement times are
// stored in UTC.
type SQL struct {
	DB *sql.DB
}

// NewSQL wraps an open database handle.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{DB: db}
}

// Migrate creates the payments table if it does not exist.
func (s *SQL) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create payments table: %w", err)
	}
	return nil
}

func (s *SQL) Insert(ctx context.Context, entry types.LedgerEntry) (types.LedgerEntry, bool, error) {
	if entry.PaymentID == "" {
		return types.LedgerEntry{}, false, errors.New("payment id is required")
	}
	// Postgres keeps microseconds, so the returned entry matches a later Get
	entry.SettledAt = entry.SettledAt.UTC().Truncate(time.Microsecond)

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO payments (
			payment_id, status, tx_hash, payer, pay_to,
			amount, asset, network, settled_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (payment_id) DO NOTHING
	`,
		entry.PaymentID,
		string(entry.Status),
		nullString(entry.Transaction),
		entry.Payer,
		entry.PayTo,
		entry.Amount,
		entry.Asset,
		string(entry.Network),
		entry.SettledAt,
	)
	if err != nil {
		return types.LedgerEntry{}, false, fmt.Errorf("failed to insert payment: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return types.LedgerEntry{}, false, fmt.Errorf("failed to insert payment: %w", err)
	}
	if inserted > 0 {
		return entry, true, nil
	}

	existing, err := s.Get(ctx, entry.PaymentID)
	if err != nil {
		return types.LedgerEntry{}, false, err
	}
	return existing, false, nil
}

func (s *SQL) Get(ctx context.Context, paymentID string) (types.LedgerEntry, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM payments WHERE payment_id=$1`, paymentID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.LedgerEntry{}, ErrNotFound
	}
	if err != nil {
		return types.LedgerEntry{}, fmt.Errorf("failed to get payment: %w", err)
	}
	return entry, nil
}

func (s *SQL) List(ctx context.Context) ([]types.LedgerEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+selectColumns+` FROM payments ORDER BY settled_at, payment_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	entries := make([]types.LedgerEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list payments: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (types.LedgerEntry, error) {
	var entry types.LedgerEntry
	var status, network string
	var txHash sql.NullString
	err := row.Scan(
		&entry.PaymentID,
		&status,
		&txHash,
		&entry.Payer,
		&entry.PayTo,
		&entry.Amount,
		&entry.Asset,
		&network,
		&entry.SettledAt,
	)
	if err != nil {
		return types.LedgerEntry{}, err
	}
	entry.SettledAt = entry.SettledAt.UTC()
	entry.Status = types.PaymentStatus(status)
	entry.Network = types.Network(network)
	if txHash.Valid {
		entry.Transaction = txHash.String
	}
	return entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
