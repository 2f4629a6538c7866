package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Clock allows deterministic time in tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// SignedOrder is what a client hands verbatim to the payment platform.
type SignedOrder struct {
	Body          string `json:"data"`
	Authorization string `json:"byte_authorization"`
	Nonce         string `json:"-"`
	Timestamp     int64  `json:"-"`
}

// OrderSigner authorizes an order-creation request for the payment platform.
type OrderSigner interface {
	SignOrder(order Order, plan Plan) (SignedOrder, error)
	Ready() bool
}

// Session is the identity returned by the platform for a login code.
type Session struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid,omitempty"`
}

// Platform is the external mini-app platform outside the payment flow.
type Platform interface {
	// Code2Session exchanges a client login code for the user's identity.
	Code2Session(ctx context.Context, code string) (Session, error)

	// CheckText runs platform content moderation; safe=false when flagged.
	CheckText(ctx context.Context, text string) (safe bool, err error)
}
