package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure; no infrastructure dependency.

var (
	// Account errors
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")

	// Order errors
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderExists      = errors.New("order number already exists")
	ErrUnknownProduct   = errors.New("unknown product")
	ErrAlreadyProcessed = errors.New("already processed")

	// Invitation errors
	ErrAlreadyRewarded = errors.New("invitation already rewarded")
	ErrSelfInvite      = errors.New("account cannot invite itself")

	// Payment platform errors
	ErrSigningKeyUnavailable = errors.New("payment signing key not configured")
	ErrInvalidSignature      = errors.New("callback signature invalid")
	ErrUpstreamUnavailable   = errors.New("payment platform unavailable")
)

// InsufficientBalanceError reports a rejected spend together with the
// untouched balance. It matches ErrInsufficientBalance under errors.Is.
type InsufficientBalanceError struct {
	Balance   int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, need %d", e.Balance, e.Requested)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
