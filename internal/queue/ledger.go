package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scriptreel/internal/credits"
	"scriptreel/internal/services"
	"scriptreel/internal/sqliteutil"
)

// Ledger is a credits.Ledger persisted in the run database so balances survive
// across invocations.
type Ledger struct {
	db *sql.DB
}

var _ credits.Ledger = (*Ledger)(nil)

// Ledger returns the persistent ledger, seeding it with initialBalance the first time.
func (s *Store) Ledger(ctx context.Context, initialBalance float64) (*Ledger, error) {
	if initialBalance < 0 {
		return nil, &services.ValidationError{Field: "initial_balance", Reason: "must not be negative"}
	}
	if _, err := s.exec(ctx,
		`INSERT OR IGNORE INTO credit_ledger (id, balance_cents) VALUES (1, ?)`,
		credits.ToCents(initialBalance)); err != nil {
		return nil, fmt.Errorf("seed credit ledger: %w", err)
	}
	return &Ledger{db: s.db}, nil
}

func (l *Ledger) Balance(ctx context.Context) (float64, error) {
	var cents int64
	if err := l.db.QueryRowContext(ctx, `SELECT balance_cents FROM credit_ledger WHERE id = 1`).Scan(&cents); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return credits.FromCents(cents), nil
}

// Charge debits amount with a conditional update, so concurrent charges can never
// overdraw the balance.
func (l *Ledger) Charge(ctx context.Context, amount float64, memo string) error {
	cents := credits.ToCents(amount)
	if cents < 0 {
		return &services.ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	ctx = sqliteutil.EnsureContext(ctx)
	var insufficient bool
	err := sqliteutil.RetryOnBusy(ctx, func() error {
		insufficient = false
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		res, err := tx.ExecContext(ctx,
			`UPDATE credit_ledger SET balance_cents = balance_cents - ? WHERE id = 1 AND balance_cents >= ?`,
			cents, cents)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			insufficient = true
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credit_charges (amount_cents, memo, created_at) VALUES (?, ?, ?)`,
			cents, nullableString(memo), sqliteutil.FormatTime(time.Now())); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("charge credits: %w", err)
	}
	if insufficient {
		available, err := l.Balance(ctx)
		if err != nil {
			return err
		}
		return credits.Insufficient(amount, available)
	}
	return nil
}

// Charges returns recorded charges, oldest first.
func (l *Ledger) Charges(ctx context.Context) ([]credits.Charge, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT amount_cents, memo FROM credit_charges ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list charges: %w", err)
	}
	defer rows.Close()
	var out []credits.Charge
	for rows.Next() {
		var (
			cents int64
			memo  sql.NullString
		)
		if err := rows.Scan(&cents, &memo); err != nil {
			return nil, err
		}
		out = append(out, credits.Charge{Amount: credits.FromCents(cents), Memo: memo.String})
	}
	return out, rows.Err()
}
