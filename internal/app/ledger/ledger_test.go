package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fableworks/coinledger/internal/domain"
	"github.com/fableworks/coinledger/internal/infra/sqlite"
)

func newTestService(t *testing.T) (*Service, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, DefaultConfig(), nil), db
}

func register(t *testing.T, s *Service, id, inviter string) Registration {
	t.Helper()
	reg, err := s.Register(context.Background(), id, inviter, "")
	if err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
	return reg
}

// assertConserved checks balance == sum(amounts) == last snapshot.
func assertConserved(t *testing.T, db *sqlite.DB, id string) {
	t.Helper()
	ctx := context.Background()
	acct, err := db.Account(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	sum, err := db.Summarize(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Sum != acct.Balance || sum.LastBalance != acct.Balance {
		t.Errorf("%s: balance %d, ledger sum %d, last snapshot %d", id, acct.Balance, sum.Sum, sum.LastBalance)
	}
}

// ─── Registration ───────────────────────────────────────────────────────────

func TestRegister_InitialGrant(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()

	reg := register(t, s, "acct-a", "")
	if !reg.Created {
		t.Error("Created = false for new account")
	}
	if reg.Account.Balance != 10 || !reg.Account.FirstCharge {
		t.Errorf("account = %+v, want balance 10 with first charge", reg.Account)
	}

	txs, err := s.Transactions(ctx, "acct-a", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 {
		t.Fatalf("len(txs) = %d, want 1", len(txs))
	}
	if txs[0].Type != domain.TxInitial || txs[0].Amount != 10 || txs[0].BalanceAfter != 10 {
		t.Errorf("tx = %+v, want initial +10 snapshot 10", txs[0])
	}
	assertConserved(t, db, "acct-a")
}

func TestRegister_ExistingAccountUntouched(t *testing.T) {
	s, _ := newTestService(t)
	register(t, s, "acct-a", "")

	reg := register(t, s, "acct-a", "")
	if reg.Created {
		t.Error("Created = true for existing account")
	}
	if reg.Account.Balance != 10 {
		t.Errorf("balance = %d, want 10 (no second grant)", reg.Account.Balance)
	}
}

func TestRegister_Invitation(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	register(t, s, "acct-a", "")

	reg := register(t, s, "acct-b", "acct-a")
	if reg.InviteReward != 10 {
		t.Errorf("InviteReward = %d, want 10", reg.InviteReward)
	}
	if reg.Account.Balance != 20 || reg.Account.InviterID != "acct-a" {
		t.Errorf("invitee = %+v, want balance 20 invited by acct-a", reg.Account)
	}

	a, _ := s.Account(ctx, "acct-a")
	if a.Balance != 20 {
		t.Errorf("inviter balance = %d, want 20", a.Balance)
	}

	inv, ok, err := db.Invitation(ctx, "acct-b")
	if err != nil || !ok {
		t.Fatalf("Invitation() = %v, %v", ok, err)
	}
	if !inv.Rewarded() || inv.InviterID != "acct-a" {
		t.Errorf("invitation = %+v, want rewarded by acct-a", inv)
	}

	err = s.GrantInviteReward(ctx, "acct-a", "acct-b")
	if !errors.Is(err, domain.ErrAlreadyRewarded) {
		t.Errorf("second GrantInviteReward = %v, want ErrAlreadyRewarded", err)
	}
	a, _ = s.Account(ctx, "acct-a")
	b, _ := s.Account(ctx, "acct-b")
	if a.Balance != 20 || b.Balance != 20 {
		t.Errorf("balances after repeat = %d/%d, want 20/20", a.Balance, b.Balance)
	}
	assertConserved(t, db, "acct-a")
	assertConserved(t, db, "acct-b")
}

func TestRegister_InvalidInviterIgnored(t *testing.T) {
	tests := []struct {
		name    string
		inviter string
	}{
		{"self", "acct-a"},
		{"unknown", "ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestService(t)
			reg := register(t, s, "acct-a", tt.inviter)
			if reg.InviteReward != 0 || reg.Account.InviterID != "" || reg.Account.Balance != 10 {
				t.Errorf("registration = %+v, want plain sign-up", reg)
			}
		})
	}
}

func TestGrantInviteReward_SelfInvite(t *testing.T) {
	s, _ := newTestService(t)
	register(t, s, "acct-a", "")
	if err := s.GrantInviteReward(context.Background(), "acct-a", "acct-a"); !errors.Is(err, domain.ErrSelfInvite) {
		t.Errorf("err = %v, want ErrSelfInvite", err)
	}
}

func TestGrantInviteReward_Direct(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	register(t, s, "acct-a", "")
	register(t, s, "acct-b", "")

	if err := s.GrantInviteReward(ctx, "acct-a", "acct-b"); err != nil {
		t.Fatalf("GrantInviteReward: %v", err)
	}
	if err := s.GrantInviteReward(ctx, "acct-a", "acct-b"); !errors.Is(err, domain.ErrAlreadyRewarded) {
		t.Errorf("repeat = %v, want ErrAlreadyRewarded", err)
	}
	n, _ := db.CountInvitations(ctx, "acct-a")
	if n != 1 {
		t.Errorf("CountInvitations = %d, want 1", n)
	}
}

// ─── Consume ────────────────────────────────────────────────────────────────

func TestConsume(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	register(t, s, "acct-a", "")

	balance, err := s.Consume(ctx, "acct-a", 1, "item advice")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if balance != 9 {
		t.Errorf("balance = %d, want 9", balance)
	}
	txs, _ := s.Transactions(ctx, "acct-a", 1)
	if txs[0].Type != domain.TxConsume || txs[0].Amount != -1 || txs[0].BalanceAfter != 9 {
		t.Errorf("latest tx = %+v, want consume -1 snapshot 9", txs[0])
	}
	assertConserved(t, db, "acct-a")
}

func TestConsume_Insufficient(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	register(t, s, "acct-a", "")
	if _, err := s.Consume(ctx, "acct-a", 7, "setup"); err != nil {
		t.Fatal(err)
	}

	_, err := s.Consume(ctx, "acct-a", 5, "x")
	var ibe *domain.InsufficientBalanceError
	if !errors.As(err, &ibe) {
		t.Fatalf("err = %v, want InsufficientBalanceError", err)
	}
	if ibe.Balance != 3 {
		t.Errorf("reported balance = %d, want 3", ibe.Balance)
	}

	acct, _ := s.Account(ctx, "acct-a")
	txs, _ := s.Transactions(ctx, "acct-a", 100)
	if acct.Balance != 3 || len(txs) != 2 {
		t.Errorf("balance %d with %d txs, want 3 with 2", acct.Balance, len(txs))
	}
	assertConserved(t, db, "acct-a")
}

func TestConsume_Errors(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	register(t, s, "acct-a", "")

	if _, err := s.Consume(ctx, "ghost", 1, ""); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("unknown account: %v, want ErrAccountNotFound", err)
	}
	if _, err := s.Consume(ctx, "acct-a", 0, ""); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero amount: %v, want ErrInvalidAmount", err)
	}
}

func TestConsume_Concurrent(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	register(t, s, "acct-a", "")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Consume(ctx, "acct-a", 1, "concurrent")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientBalance):
				fail++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 10 || fail != 20 {
		t.Errorf("succeeded %d, rejected %d; want 10 and 20", ok, fail)
	}
	assertConserved(t, db, "acct-a")
}

// ─── Recharge ───────────────────────────────────────────────────────────────

func TestRecharge_WithBonus(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	register(t, s, "acct-a", "")

	res, err := s.Recharge(ctx, "acct-a", 30, 5, "ORD-001")
	if err != nil {
		t.Fatalf("Recharge: %v", err)
	}
	if res.Balance != 45 {
		t.Errorf("balance = %d, want 45", res.Balance)
	}

	txs, _ := s.Transactions(ctx, "acct-a", 2)
	if len(txs) != 2 {
		t.Fatalf("len(txs) = %d, want 2", len(txs))
	}
	bonus, recharge := txs[0], txs[1]
	if recharge.Type != domain.TxRecharge || recharge.Amount != 30 || recharge.BalanceAfter != 40 {
		t.Errorf("recharge tx = %+v", recharge)
	}
	if bonus.Type != domain.TxFirstBonus || bonus.Amount != 5 || bonus.BalanceAfter != 45 {
		t.Errorf("bonus tx = %+v", bonus)
	}

	acct, _ := s.Account(ctx, "acct-a")
	if acct.FirstCharge {
		t.Error("first charge flag still set after recharge")
	}
	assertConserved(t, db, "acct-a")
}

func TestRecharge_IdempotentPerOrder(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	register(t, s, "acct-a", "")

	if _, err := s.Recharge(ctx, "acct-a", 10, 0, "ORD-002"); err != nil {
		t.Fatal(err)
	}
	_, err := s.Recharge(ctx, "acct-a", 10, 0, "ORD-002")
	if !errors.Is(err, domain.ErrAlreadyProcessed) {
		t.Errorf("second Recharge = %v, want ErrAlreadyProcessed", err)
	}
	acct, _ := s.Account(ctx, "acct-a")
	if acct.Balance != 20 {
		t.Errorf("balance = %d, want 20", acct.Balance)
	}
	assertConserved(t, db, "acct-a")
}

func TestRecharge_UnknownAccount(t *testing.T) {
	s, _ := newTestService(t)
	if _, err := s.Recharge(context.Background(), "ghost", 10, 0, "ORD-X"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestTransactions_UnknownAccount(t *testing.T) {
	s, _ := newTestService(t)
	if _, err := s.Transactions(context.Background(), "ghost", 10); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestBalance(t *testing.T) {
	s, _ := newTestService(t)
	register(t, s, "acct-a", "")
	bal, first, err := s.Balance(context.Background(), "acct-a")
	if err != nil || bal != 10 || !first {
		t.Errorf("Balance = %d, %v, %v; want 10, true, nil", bal, first, err)
	}
}
