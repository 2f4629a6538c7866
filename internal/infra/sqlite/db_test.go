package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fableworks/coinledger/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Store Tests
// ═══════════════════════════════════════════════════════════════════════════

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedAccount creates an account and credits it with balance through the
// ledger, as the application layer would.
func seedAccount(t *testing.T, db *DB, id string, balance int64) {
	t.Helper()
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.InsertAccount(ctx, id, "", ""); err != nil {
			return err
		}
		if balance == 0 {
			return nil
		}
		bal, err := tx.Credit(ctx, id, balance, false)
		if err != nil {
			return err
		}
		_, err = tx.AppendTransaction(ctx, domain.Transaction{
			AccountID: id, Type: domain.TxInitial, Amount: balance, BalanceAfter: bal,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed account %s: %v", id, err)
	}
}

// ─── Open / Migrate ─────────────────────────────────────────────────────────

func TestOpen_MigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestOpen_WALEnabled(t *testing.T) {
	db := newTestDB(t)
	var mode string
	if err := db.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

// ─── Accounts ───────────────────────────────────────────────────────────────

func TestAccount_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Account(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("Account(ghost) error = %v, want ErrAccountNotFound", err)
	}
}

func TestInsertAccount_Defaults(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 0)

	a, err := db.Account(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if a.Balance != 0 {
		t.Errorf("Balance = %d, want 0", a.Balance)
	}
	if !a.FirstCharge {
		t.Error("new account should have first-charge available")
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestInsertAccount_Duplicate(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 0)
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.InsertAccount(ctx, "alice", "", "")
		return err
	})
	if err == nil {
		t.Fatal("duplicate account_id should be rejected")
	}
}

func TestDebit(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 10)
	ctx := context.Background()

	var bal int64
	err := db.WithTx(ctx, func(tx *Tx) error {
		var err error
		bal, err = tx.Debit(ctx, "alice", 4)
		return err
	})
	if err != nil {
		t.Fatalf("Debit() error: %v", err)
	}
	if bal != 6 {
		t.Errorf("balance = %d, want 6", bal)
	}
}

func TestDebit_Insufficient(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 3)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Debit(ctx, "alice", 5)
		return err
	})
	var ibe *domain.InsufficientBalanceError
	if !errors.As(err, &ibe) {
		t.Fatalf("Debit() error = %v, want InsufficientBalanceError", err)
	}
	if ibe.Balance != 3 {
		t.Errorf("reported balance = %d, want 3", ibe.Balance)
	}

	a, _ := db.Account(ctx, "alice")
	if a.Balance != 3 {
		t.Errorf("balance after rejected debit = %d, want 3", a.Balance)
	}
}

func TestDebit_UnknownAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Debit(ctx, "ghost", 1)
		return err
	})
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("Debit(ghost) error = %v, want ErrAccountNotFound", err)
	}
}

func TestDebit_Concurrent_NeverOverdraws(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 10)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.WithTx(ctx, func(tx *Tx) error {
				_, err := tx.Debit(ctx, "alice", 1)
				return err
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 10 {
		t.Errorf("successful debits = %d, want 10", success)
	}
	a, _ := db.Account(ctx, "alice")
	if a.Balance != 0 {
		t.Errorf("final balance = %d, want 0", a.Balance)
	}
}

func TestCredit_ClearsFirstCharge(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 0)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Credit(ctx, "alice", 5, true)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := db.Account(ctx, "alice")
	if a.FirstCharge {
		t.Error("first-charge flag should be cleared")
	}
	if a.Balance != 5 {
		t.Errorf("balance = %d, want 5", a.Balance)
	}
}

// ─── Transactions ───────────────────────────────────────────────────────────

func TestWithTx_RollbackOnError(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 10)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.Debit(ctx, "alice", 5); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}
	a, _ := db.Account(ctx, "alice")
	if a.Balance != 10 {
		t.Errorf("balance after rollback = %d, want 10", a.Balance)
	}
}

func TestTransactions_AppendOnly(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 10)

	if _, err := db.db.Exec(`UPDATE transactions SET amount = 99`); err == nil {
		t.Error("UPDATE on transactions should be rejected")
	}
	if _, err := db.db.Exec(`DELETE FROM transactions`); err == nil {
		t.Error("DELETE on transactions should be rejected")
	}
}

func TestAppendTransaction_OrderRefUnique(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 0)
	ctx := context.Background()

	appendRecharge := func() error {
		return db.WithTx(ctx, func(tx *Tx) error {
			_, err := tx.AppendTransaction(ctx, domain.Transaction{
				AccountID: "alice", Type: domain.TxRecharge, Amount: 10, BalanceAfter: 10, OrderRef: "ORD-1",
			})
			return err
		})
	}
	if err := appendRecharge(); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := appendRecharge(); !errors.Is(err, domain.ErrAlreadyProcessed) {
		t.Fatalf("second append error = %v, want ErrAlreadyProcessed", err)
	}
}

func TestAppendTransaction_InvalidType(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 0)
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.AppendTransaction(ctx, domain.Transaction{AccountID: "alice", Type: "refund"})
		return err
	})
	if err == nil {
		t.Fatal("invalid type should be rejected")
	}
}

func TestListTransactions_MostRecentFirst(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := db.WithTx(ctx, func(tx *Tx) error {
			bal, err := tx.Debit(ctx, "alice", 1)
			if err != nil {
				return err
			}
			_, err = tx.AppendTransaction(ctx, domain.Transaction{
				AccountID: "alice", Type: domain.TxConsume, Amount: -1, BalanceAfter: bal,
			})
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	txs, err := db.ListTransactions(ctx, "alice", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 {
		t.Fatalf("len = %d, want 2", len(txs))
	}
	if txs[0].BalanceAfter != 7 || txs[1].BalanceAfter != 8 {
		t.Errorf("snapshots = %d,%d, want 7,8", txs[0].BalanceAfter, txs[1].BalanceAfter)
	}

	s, err := db.Summarize(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if s.Entries != 4 || s.Sum != 7 || s.LastBalance != 7 {
		t.Errorf("Summarize() = %+v, want {4 7 7}", s)
	}
}

// ─── Orders ─────────────────────────────────────────────────────────────────

func insertOrder(t *testing.T, db *DB, o domain.Order) domain.Order {
	t.Helper()
	ctx := context.Background()
	var out domain.Order
	err := db.WithTx(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.InsertOrder(ctx, o)
		return err
	})
	if err != nil {
		t.Fatalf("InsertOrder() error: %v", err)
	}
	return out
}

func TestInsertOrder_Duplicate(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 0)
	o := insertOrder(t, db, domain.Order{OrderNo: "ORD-1", AccountID: "alice", Amount: 1200, Coins: 30, BonusCoins: 5})
	if o.Status != domain.OrderPending {
		t.Errorf("Status = %q, want pending", o.Status)
	}

	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.InsertOrder(ctx, domain.Order{OrderNo: "ORD-1", AccountID: "alice"})
		return err
	})
	if !errors.Is(err, domain.ErrOrderExists) {
		t.Fatalf("duplicate InsertOrder() error = %v, want ErrOrderExists", err)
	}
}

func TestMarkOrderPaid_Once(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 0)
	insertOrder(t, db, domain.Order{OrderNo: "ORD-1", AccountID: "alice", Amount: 500, Coins: 10})
	ctx := context.Background()

	mark := func(platformID string) (domain.Order, bool) {
		var (
			o       domain.Order
			changed bool
		)
		err := db.WithTx(ctx, func(tx *Tx) error {
			var err error
			o, changed, err = tx.MarkOrderPaid(ctx, "ORD-1", platformID)
			return err
		})
		if err != nil {
			t.Fatalf("MarkOrderPaid() error: %v", err)
		}
		return o, changed
	}

	o, changed := mark("P-1")
	if !changed || o.Status != domain.OrderPaid || o.PaidAt == nil || o.PlatformOrderID != "P-1" {
		t.Fatalf("first mark = %+v changed=%v", o, changed)
	}
	o2, changed := mark("P-2")
	if changed {
		t.Error("second mark should be a no-op")
	}
	if o2.PlatformOrderID != "P-1" {
		t.Errorf("PlatformOrderID = %q, want P-1 (unchanged)", o2.PlatformOrderID)
	}
}

func TestMarkOrderPaid_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *Tx) error {
		_, _, err := tx.MarkOrderPaid(ctx, "nope", "")
		return err
	})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("error = %v, want ErrOrderNotFound", err)
	}
}

func TestExpireOrders(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 0)
	ctx := context.Background()

	past := time.Now().UTC().Add(-2 * time.Hour)
	db.SetClock(func() time.Time { return past })
	insertOrder(t, db, domain.Order{OrderNo: "OLD", AccountID: "alice"})
	db.SetClock(func() time.Time { return time.Now().UTC() })
	insertOrder(t, db, domain.Order{OrderNo: "NEW", AccountID: "alice"})

	n, err := db.ExpireOrders(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	old, _ := db.Order(ctx, "OLD")
	if old.Status != domain.OrderExpired || old.ExpiredAt == nil {
		t.Errorf("OLD = %+v, want expired", old)
	}
	fresh, _ := db.Order(ctx, "NEW")
	if fresh.Status != domain.OrderPending {
		t.Errorf("NEW status = %q, want pending", fresh.Status)
	}

	orders, err := db.ListOrders(ctx, "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 2 || orders[0].OrderNo != "NEW" {
		t.Errorf("ListOrders() = %+v", orders)
	}
}

// ─── Invitations ────────────────────────────────────────────────────────────

func TestMarkInvitationRewarded_Upsert(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, "alice", 0)
	seedAccount(t, db, "bob", 0)
	seedAccount(t, db, "carol", 0)
	ctx := context.Background()

	for _, inviter := range []string{"alice", "carol"} {
		err := db.WithTx(ctx, func(tx *Tx) error {
			return tx.MarkInvitationRewarded(ctx, inviter, "bob")
		})
		if err != nil {
			t.Fatalf("MarkInvitationRewarded(%s) error: %v", inviter, err)
		}
	}

	inv, ok, err := db.Invitation(ctx, "bob")
	if err != nil || !ok {
		t.Fatalf("Invitation(bob) = %v, %v", ok, err)
	}
	if inv.InviterID != "alice" {
		t.Errorf("InviterID = %q, want alice (first inviter kept)", inv.InviterID)
	}
	if !inv.Rewarded() {
		t.Error("both flags should be set")
	}
	n, _ := db.CountInvitations(ctx, "alice")
	if n != 1 {
		t.Errorf("CountInvitations(alice) = %d, want 1", n)
	}
}

func TestInvitation_Missing(t *testing.T) {
	db := newTestDB(t)
	_, ok, err := db.Invitation(context.Background(), "nobody")
	if err != nil || ok {
		t.Fatalf("Invitation(nobody) = %v, %v; want false, nil", ok, err)
	}
}
