package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fableworks/coinledger/internal/domain"
	"github.com/fableworks/coinledger/internal/infra/observability"
	"github.com/fableworks/coinledger/internal/infra/sqlite"
	"github.com/fableworks/coinledger/pkg/logger"
)

// ─── Registration & Invitation Rewards ──────────────────────────────────────
// An account is created on first contact. Creation credits the initial grant
// and, when a valid distinct inviter is supplied, the invitation reward for
// both sides, all in one transaction.

// Registration describes the result of Register.
type Registration struct {
	Account      domain.Account `json:"account"`
	Created      bool           `json:"created"`
	InviteReward int64          `json:"invite_reward"`
}

// Register finds or creates the account for accountID. inviterID is only
// honoured when the account is new, differs from accountID and already exists.
func (s *Service) Register(ctx context.Context, accountID, inviterID, nickname string) (Registration, error) {
	defer observe("register", time.Now())

	var reg Registration
	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		existing, err := tx.Account(ctx, accountID)
		if err == nil {
			reg = Registration{Account: existing}
			return nil
		}
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return err
		}

		inviter := s.resolveInviter(ctx, tx, accountID, inviterID)
		if _, err := tx.InsertAccount(ctx, accountID, nickname, inviter); err != nil {
			return err
		}
		if err := s.grantInitialTx(ctx, tx, accountID); err != nil {
			return err
		}
		if inviter != "" {
			if err := s.grantInviteRewardTx(ctx, tx, inviter, accountID); err != nil {
				return err
			}
			reg.InviteReward = s.cfg.InviteReward
		}

		reg.Created = true
		reg.Account, err = tx.Account(ctx, accountID)
		return err
	})
	if err != nil {
		return Registration{}, err
	}

	if reg.Created {
		invited := reg.InviteReward > 0
		observability.AccountsRegistered.WithLabelValues(strconv.FormatBool(invited)).Inc()
		record(domain.TxInitial, s.cfg.InitialGrant)
		if invited {
			record(domain.TxInviterReward, s.cfg.InviteReward)
			record(domain.TxInviteeReward, s.cfg.InviteReward)
		}
		s.log.Info("account registered",
			zap.String("account", logger.Redact(accountID)),
			zap.Bool("invited", invited),
			zap.Int64("balance", reg.Account.Balance))
	}
	return reg, nil
}

func (s *Service) resolveInviter(ctx context.Context, tx *sqlite.Tx, accountID, inviterID string) string {
	if inviterID == "" || inviterID == accountID {
		return ""
	}
	if _, err := tx.Account(ctx, inviterID); err != nil {
		s.log.Warn("ignoring unknown inviter",
			zap.String("account", logger.Redact(accountID)),
			zap.String("inviter", logger.Redact(inviterID)))
		return ""
	}
	return inviterID
}

// grantInitialTx credits the starting balance of a freshly inserted account.
func (s *Service) grantInitialTx(ctx context.Context, tx *sqlite.Tx, accountID string) error {
	balance, err := tx.Credit(ctx, accountID, s.cfg.InitialGrant, false)
	if err != nil {
		return err
	}
	_, err = tx.AppendTransaction(ctx, domain.Transaction{
		AccountID:    accountID,
		Type:         domain.TxInitial,
		Amount:       s.cfg.InitialGrant,
		BalanceAfter: balance,
		Description:  "Sign-up grant",
	})
	return err
}

// GrantInviteReward credits the invitation reward to both accounts once.
// A repeat for an invitee whose invitation is already rewarded returns
// domain.ErrAlreadyRewarded without touching either balance.
func (s *Service) GrantInviteReward(ctx context.Context, inviterID, inviteeID string) error {
	defer observe("invite_reward", time.Now())

	err := s.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		return s.grantInviteRewardTx(ctx, tx, inviterID, inviteeID)
	})
	if err != nil {
		return err
	}
	record(domain.TxInviterReward, s.cfg.InviteReward)
	record(domain.TxInviteeReward, s.cfg.InviteReward)
	s.log.Info("invitation rewarded",
		zap.String("inviter", logger.Redact(inviterID)),
		zap.String("invitee", logger.Redact(inviteeID)),
		zap.Int64("reward", s.cfg.InviteReward))
	return nil
}

func (s *Service) grantInviteRewardTx(ctx context.Context, tx *sqlite.Tx, inviterID, inviteeID string) error {
	if inviterID == inviteeID {
		return domain.ErrSelfInvite
	}
	inv, ok, err := tx.Invitation(ctx, inviteeID)
	if err != nil {
		return err
	}
	if ok && inv.Rewarded() {
		return domain.ErrAlreadyRewarded
	}

	for _, leg := range []struct {
		account string
		typ     domain.TransactionType
		desc    string
	}{
		{inviterID, domain.TxInviterReward, "Invitation reward"},
		{inviteeID, domain.TxInviteeReward, "Invited sign-up reward"},
	} {
		balance, err := tx.Credit(ctx, leg.account, s.cfg.InviteReward, false)
		if err != nil {
			return err
		}
		if _, err := tx.AppendTransaction(ctx, domain.Transaction{
			AccountID:    leg.account,
			Type:         leg.typ,
			Amount:       s.cfg.InviteReward,
			BalanceAfter: balance,
			Description:  leg.desc,
		}); err != nil {
			return err
		}
	}

	return tx.MarkInvitationRewarded(ctx, inviterID, inviteeID)
}
