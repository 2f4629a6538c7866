package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fableworks/coinledger/internal/domain"
)

// ─── Account Operations ─────────────────────────────────────────────────────

const accountColumns = `account_id, nickname, balance, first_charge, inviter_id, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (domain.Account, error) {
	var (
		a                domain.Account
		firstCharge      int
		inviter          sql.NullString
		created, updated string
	)
	if err := row.Scan(&a.AccountID, &a.Nickname, &a.Balance, &firstCharge, &inviter, &created, &updated); err != nil {
		return domain.Account{}, err
	}
	a.FirstCharge = firstCharge == 1
	a.InviterID = inviter.String
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return a, nil
}

func getAccount(ctx context.Context, q querier, accountID string) (domain.Account, error) {
	a, err := scanAccount(q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = ?`, accountID))
	if isNoRows(err) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// Account returns the account with the given platform identifier.
func (db *DB) Account(ctx context.Context, accountID string) (domain.Account, error) {
	return getAccount(ctx, db.db, accountID)
}

// Account reads an account inside the transaction.
func (tx *Tx) Account(ctx context.Context, accountID string) (domain.Account, error) {
	return getAccount(ctx, tx.tx, accountID)
}

// InsertAccount creates an account with a zero balance and the first-charge
// flag set. Balance is only ever raised afterwards through Credit.
func (tx *Tx) InsertAccount(ctx context.Context, accountID, nickname, inviterID string) (domain.Account, error) {
	now := formatTime(tx.now)
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO accounts (account_id, nickname, balance, first_charge, inviter_id, created_at, updated_at)
		VALUES (?, ?, 0, 1, ?, ?, ?)
	`, accountID, nickname, nullString(inviterID), now, now)
	if err != nil {
		return domain.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return getAccount(ctx, tx.tx, accountID)
}

// Debit atomically subtracts amount when the balance covers it and returns the
// new balance. On shortfall nothing is written and the untouched balance is
// reported through *domain.InsufficientBalanceError.
func (tx *Tx) Debit(ctx context.Context, accountID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	var balance int64
	err := tx.tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance - ?, updated_at = ?
		WHERE account_id = ? AND balance >= ?
		RETURNING balance
	`, amount, formatTime(tx.now), accountID, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("debit: %w", err)
	}

	acct, err := getAccount(ctx, tx.tx, accountID)
	if err != nil {
		return 0, err
	}
	return 0, &domain.InsufficientBalanceError{Balance: acct.Balance, Requested: amount}
}

// Credit atomically adds amount and returns the new balance. When
// clearFirstCharge is set the one-shot first-charge flag is consumed.
func (tx *Tx) Credit(ctx context.Context, accountID string, amount int64, clearFirstCharge bool) (int64, error) {
	if amount < 0 {
		return 0, domain.ErrInvalidAmount
	}
	var balance int64
	err := tx.tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance + ?,
		    first_charge = CASE WHEN ? = 1 THEN 0 ELSE first_charge END,
		    updated_at = ?
		WHERE account_id = ?
		RETURNING balance
	`, amount, boolInt(clearFirstCharge), formatTime(tx.now), accountID).Scan(&balance)
	if isNoRows(err) {
		return 0, domain.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}
	return balance, nil
}

// CountAccounts returns the number of accounts.
func (db *DB) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n)
	return n, err
}
