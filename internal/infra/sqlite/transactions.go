package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fableworks/coinledger/internal/domain"
)

// ─── Transaction Log Operations ─────────────────────────────────────────────

// AppendTransaction inserts a ledger row stamped with the transaction time.
// A second row of the same type for the same order reference is rejected
// with domain.ErrAlreadyProcessed.
func (tx *Tx) AppendTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	if !t.Type.Valid() {
		return domain.Transaction{}, fmt.Errorf("append transaction: invalid type %q", t.Type)
	}
	t.CreatedAt = tx.now
	res, err := tx.tx.ExecContext(ctx, `
		INSERT INTO transactions (account_id, type, amount, balance_after, description, order_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.AccountID, string(t.Type), t.Amount, t.BalanceAfter, t.Description, nullString(t.OrderRef), formatTime(t.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Transaction{}, domain.ErrAlreadyProcessed
		}
		return domain.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}
	t.ID, _ = res.LastInsertId()
	return t, nil
}

// HasOrderEntry reports whether a ledger row of type typ already references orderRef.
func (tx *Tx) HasOrderEntry(ctx context.Context, orderRef string, typ domain.TransactionType) (bool, error) {
	var n int
	err := tx.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE order_ref = ? AND type = ?`, orderRef, string(typ)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup order entry: %w", err)
	}
	return n > 0, nil
}

// ListTransactions returns an account's ledger rows, most recent first.
func (db *DB) ListTransactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, account_id, type, amount, balance_after, description, order_ref, created_at
		FROM transactions
		WHERE account_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			t        domain.Transaction
			typ      string
			orderRef sql.NullString
			created  string
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &typ, &t.Amount, &t.BalanceAfter, &t.Description, &orderRef, &created); err != nil {
			return nil, err
		}
		t.Type = domain.TransactionType(typ)
		t.OrderRef = orderRef.String
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// LedgerSummary aggregates an account's transaction log.
type LedgerSummary struct {
	Entries     int64
	Sum         int64
	LastBalance int64
}

// Summarize returns the entry count, amount sum and latest balance snapshot
// for an account. For a consistent ledger Sum == LastBalance == balance.
func (db *DB) Summarize(ctx context.Context, accountID string) (LedgerSummary, error) {
	var s LedgerSummary
	err := db.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0),
		       COALESCE((SELECT balance_after FROM transactions WHERE account_id = ? ORDER BY id DESC LIMIT 1), 0)
		FROM transactions WHERE account_id = ?
	`, accountID, accountID).Scan(&s.Entries, &s.Sum, &s.LastBalance)
	if err != nil {
		return LedgerSummary{}, fmt.Errorf("summarize ledger: %w", err)
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
