// Package ledger implements the Account Service and the Invitation Reward
// Engine on top of the SQLite ledger store.
//
// Every balance change is applied together with its transaction-log row in a
// single store transaction:
//  1. Conditional UPDATE of the account balance (RETURNING the new balance)
//  2. INSERT of the ledger row carrying that balance as its snapshot
//
// Either both are committed or neither is.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fableworks/coinledger/internal/domain"
	"github.com/fableworks/coinledger/internal/infra/observability"
	"github.com/fableworks/coinledger/internal/infra/sqlite"
	"github.com/fableworks/coinledger/pkg/logger"
)

// Config holds the fixed grant amounts.
type Config struct {
	InitialGrant int64 // credited once at account creation (default: 10)
	InviteReward int64 // credited to inviter and invitee each (default: 10)
}

// DefaultConfig returns the standard grant amounts.
func DefaultConfig() Config {
	return Config{
		InitialGrant: 10,
		InviteReward: 10,
	}
}

// Service is the Account Service.
type Service struct {
	db  *sqlite.DB
	cfg Config
	log *zap.Logger
}

// New creates an Account Service.
func New(db *sqlite.DB, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, cfg: cfg, log: log.Named("ledger")}
}

// Config returns the grant configuration.
func (s *Service) Config() Config { return s.cfg }

// Account returns the account for accountID.
func (s *Service) Account(ctx context.Context, accountID string) (domain.Account, error) {
	return s.db.Account(ctx, accountID)
}

// Transactions returns up to limit ledger rows for an account, most recent first.
func (s *Service) Transactions(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	if _, err := s.db.Account(ctx, accountID); err != nil {
		return nil, err
	}
	return s.db.ListTransactions(ctx, accountID, limit)
}

// ─── Consume ────────────────────────────────────────────────────────────────

// Consume spends amount coins. On shortfall it returns a
// *domain.InsufficientBalanceError and leaves the ledger untouched.
func (s *Service) Consume(ctx context.Context, accountID string, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	defer observe("consume", time.Now())

	var balance int64
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		var err error
		balance, err = tx.Debit(ctx, accountID, amount)
		if err != nil {
			return err
		}
		_, err = tx.AppendTransaction(ctx, domain.Transaction{
			AccountID:    accountID,
			Type:         domain.TxConsume,
			Amount:       -amount,
			BalanceAfter: balance,
			Description:  description,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			observability.ConsumeRejected.Inc()
		}
		return 0, err
	}

	record(domain.TxConsume, amount)
	s.log.Info("coins consumed",
		zap.String("account", logger.Redact(accountID)),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance),
		zap.String("description", description))
	return balance, nil
}

// ─── Recharge ───────────────────────────────────────────────────────────────

// RechargeResult is the outcome of a successful recharge.
type RechargeResult struct {
	Coins   int64 `json:"coins"`
	Bonus   int64 `json:"bonus"`
	Balance int64 `json:"balance"`
}

// Recharge credits coins plus bonusCoins for orderRef in its own transaction.
func (s *Service) Recharge(ctx context.Context, accountID string, coins, bonusCoins int64, orderRef string) (RechargeResult, error) {
	var res RechargeResult
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		var err error
		res, err = s.RechargeTx(ctx, tx, accountID, coins, bonusCoins, orderRef)
		return err
	})
	if err != nil {
		return RechargeResult{}, err
	}
	s.Committed(res)
	return res, nil
}

// RechargeTx applies a recharge inside an existing transaction so callers can
// bind it to other writes (the order status flip). Call Committed after the
// surrounding transaction commits.
//
// A recharge is applied at most once per order reference; a repeat returns
// domain.ErrAlreadyProcessed.
func (s *Service) RechargeTx(ctx context.Context, tx *sqlite.Tx, accountID string, coins, bonusCoins int64, orderRef string) (RechargeResult, error) {
	if coins < 0 || bonusCoins < 0 {
		return RechargeResult{}, domain.ErrInvalidAmount
	}
	defer observe("recharge", time.Now())

	if orderRef != "" {
		done, err := tx.HasOrderEntry(ctx, orderRef, domain.TxRecharge)
		if err != nil {
			return RechargeResult{}, err
		}
		if done {
			return RechargeResult{}, domain.ErrAlreadyProcessed
		}
	}

	afterCoins, err := tx.Credit(ctx, accountID, coins, true)
	if err != nil {
		return RechargeResult{}, err
	}
	if _, err := tx.AppendTransaction(ctx, domain.Transaction{
		AccountID:    accountID,
		Type:         domain.TxRecharge,
		Amount:       coins,
		BalanceAfter: afterCoins,
		Description:  fmt.Sprintf("Top-up of %d coins", coins),
		OrderRef:     orderRef,
	}); err != nil {
		return RechargeResult{}, err
	}

	balance := afterCoins
	if bonusCoins > 0 {
		balance, err = tx.Credit(ctx, accountID, bonusCoins, true)
		if err != nil {
			return RechargeResult{}, err
		}
		if _, err := tx.AppendTransaction(ctx, domain.Transaction{
			AccountID:    accountID,
			Type:         domain.TxFirstBonus,
			Amount:       bonusCoins,
			BalanceAfter: balance,
			Description:  "First top-up bonus",
			OrderRef:     orderRef,
		}); err != nil {
			return RechargeResult{}, err
		}
	}

	return RechargeResult{Coins: coins, Bonus: bonusCoins, Balance: balance}, nil
}

// Committed records metrics for a recharge whose transaction has committed.
func (s *Service) Committed(res RechargeResult) {
	record(domain.TxRecharge, res.Coins)
	if res.Bonus > 0 {
		record(domain.TxFirstBonus, res.Bonus)
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func record(typ domain.TransactionType, amount int64) {
	observability.LedgerEntries.WithLabelValues(string(typ)).Inc()
	observability.LedgerCoins.WithLabelValues(string(typ)).Add(float64(amount))
}

func observe(op string, start time.Time) {
	observability.LedgerOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Balance returns the current balance and whether the first-charge bonus is
// still available.
func (s *Service) Balance(ctx context.Context, accountID string) (int64, bool, error) {
	acct, err := s.db.Account(ctx, accountID)
	if err != nil {
		return 0, false, err
	}
	return acct.Balance, acct.FirstCharge, nil
}
