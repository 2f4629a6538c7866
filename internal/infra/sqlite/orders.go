package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fableworks/coinledger/internal/domain"
)

// ─── Order Operations ───────────────────────────────────────────────────────

const orderColumns = `id, order_no, account_id, product_id, amount, coins, bonus_coins, status, mock,
	platform_order_id, created_at, paid_at, expired_at`

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var (
		o                 domain.Order
		status            string
		mock              int
		platformID        sql.NullString
		created           string
		paidAt, expiredAt sql.NullString
	)
	err := row.Scan(&o.ID, &o.OrderNo, &o.AccountID, &o.ProductID, &o.Amount, &o.Coins, &o.BonusCoins,
		&status, &mock, &platformID, &created, &paidAt, &expiredAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.Mock = mock == 1
	o.PlatformOrderID = platformID.String
	o.CreatedAt = parseTime(created)
	o.PaidAt = parseNullTime(paidAt)
	o.ExpiredAt = parseNullTime(expiredAt)
	return o, nil
}

func getOrder(ctx context.Context, q querier, orderNo string) (domain.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_no = ?`, orderNo))
	if isNoRows(err) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// Order returns the order with the given order number.
func (db *DB) Order(ctx context.Context, orderNo string) (domain.Order, error) {
	return getOrder(ctx, db.db, orderNo)
}

// Order reads an order inside the transaction.
func (tx *Tx) Order(ctx context.Context, orderNo string) (domain.Order, error) {
	return getOrder(ctx, tx.tx, orderNo)
}

// InsertOrder persists a new pending order. A duplicate order number yields
// domain.ErrOrderExists.
func (tx *Tx) InsertOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO orders (order_no, account_id, product_id, amount, coins, bonus_coins, status, mock, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)
	`, o.OrderNo, o.AccountID, o.ProductID, o.Amount, o.Coins, o.BonusCoins, boolInt(o.Mock), formatTime(tx.now))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrOrderExists
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return getOrder(ctx, tx.tx, o.OrderNo)
}

// MarkOrderPaid moves a pending or expired order to paid and records the
// platform's order id. changed is false when the order was already paid, in
// which case the stored record is returned untouched.
func (tx *Tx) MarkOrderPaid(ctx context.Context, orderNo, platformOrderID string) (o domain.Order, changed bool, err error) {
	res, err := tx.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = 'paid',
		    paid_at = ?,
		    platform_order_id = COALESCE(?, platform_order_id)
		WHERE order_no = ? AND status IN ('pending', 'expired')
	`, formatTime(tx.now), nullString(platformOrderID), orderNo)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("mark order paid: %w", err)
	}
	n, _ := res.RowsAffected()
	o, err = getOrder(ctx, tx.tx, orderNo)
	if err != nil {
		return domain.Order{}, false, err
	}
	return o, n == 1, nil
}

// ExpireOrders marks pending orders created before cutoff as expired and
// returns how many changed.
func (db *DB) ExpireOrders(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.db.ExecContext(ctx, `
		UPDATE orders
		SET status = 'expired', expired_at = ?
		WHERE status = 'pending' AND created_at < ?
	`, formatTime(db.now()), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("expire orders: %w", err)
	}
	return res.RowsAffected()
}

// ListOrders returns an account's orders, newest first.
func (db *DB) ListOrders(ctx context.Context, accountID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE account_id = ? ORDER BY id DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
