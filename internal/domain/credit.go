// Package domain contains pure business types with ZERO infrastructure imports.
// Accounts, ledger entries, orders and invitations live here together with the
// sentinel errors every layer agrees on.
package domain

import "time"

// ─── Ledger Types ───────────────────────────────────────────────────────────

// TransactionType represents the business reason for a balance change.
type TransactionType string

const (
	TxInitial       TransactionType = "initial"
	TxConsume       TransactionType = "consume"
	TxRecharge      TransactionType = "recharge"
	TxFirstBonus    TransactionType = "first_bonus"
	TxInviterReward TransactionType = "invite_reward"
	TxInviteeReward TransactionType = "invited_reward"
)

// Valid reports whether t belongs to the closed set of ledger entry types.
func (t TransactionType) Valid() bool {
	switch t {
	case TxInitial, TxConsume, TxRecharge, TxFirstBonus, TxInviterReward, TxInviteeReward:
		return true
	}
	return false
}

// DisplayName returns the label shown to end users in transaction history.
func (t TransactionType) DisplayName() string {
	switch t {
	case TxInitial:
		return "Sign-up grant"
	case TxConsume:
		return "Feature usage"
	case TxRecharge:
		return "Top-up"
	case TxFirstBonus:
		return "First top-up bonus"
	case TxInviterReward:
		return "Invitation reward"
	case TxInviteeReward:
		return "Invited sign-up reward"
	}
	return string(t)
}

// Account is a coin holder, keyed by the opaque platform user identifier.
type Account struct {
	AccountID   string    `json:"account_id"`
	Nickname    string    `json:"nickname,omitempty"`
	Balance     int64     `json:"balance"`
	FirstCharge bool      `json:"first_charge_available"`
	InviterID   string    `json:"inviter_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Transaction is a single append-only row in the coin ledger.
// BalanceAfter is the account balance immediately after Amount was applied.
type Transaction struct {
	ID           int64           `json:"id"`
	AccountID    string          `json:"account_id"`
	Type         TransactionType `json:"type"`
	Amount       int64           `json:"amount"`
	BalanceAfter int64           `json:"balance_after"`
	Description  string          `json:"description,omitempty"`
	OrderRef     string          `json:"order_ref,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Invitation records that Invitee registered through Inviter's referral link.
type Invitation struct {
	ID              int64     `json:"id"`
	InviterID       string    `json:"inviter_id"`
	InviteeID       string    `json:"invitee_id"`
	InviterRewarded bool      `json:"inviter_rewarded"`
	InviteeRewarded bool      `json:"invitee_rewarded"`
	CreatedAt       time.Time `json:"created_at"`
}

// Rewarded reports whether both sides of the invitation have been credited.
func (i Invitation) Rewarded() bool {
	return i.InviterRewarded && i.InviteeRewarded
}
