// Package payment reconciles platform payment callbacks against pending
// orders and credits the ledger.
//
// Callback flow:
//  1. Parse the envelope and verify msg_signature
//  2. Ignore anything that is not a successful payment
//  3. Look up the order; acknowledge already-paid orders without crediting
//  4. In one transaction: flip the order to paid and recharge the account
//
// The platform retries on any non-zero err_no, so every path returns a
// well-formed Ack.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fableworks/coinledger/internal/app/ledger"
	"github.com/fableworks/coinledger/internal/app/orders"
	"github.com/fableworks/coinledger/internal/domain"
	"github.com/fableworks/coinledger/internal/infra/observability"
	"github.com/fableworks/coinledger/internal/infra/sqlite"
	"github.com/fableworks/coinledger/pkg/logger"
)

// Ack codes returned to the platform.
const (
	AckOK             = 0
	AckMalformed      = 1
	AckBadSignature   = 2
	AckOrderNotFound  = 3
	AckAccountMissing = 4
	AckCreditFailed   = 5
	AckAmountMismatch = 6
	AckInternal       = 500
)

const (
	callbackTypePayment = "payment"
	statusSuccess       = "SUCCESS"
)

// Ack is the callback acknowledgement body.
type Ack struct {
	Code    int    `json:"err_no"`
	Message string `json:"err_tips"`
}

var ackMessages = map[int]string{
	AckOK:             "success",
	AckMalformed:      "malformed message",
	AckBadSignature:   "invalid signature",
	AckOrderNotFound:  "order not found",
	AckAccountMissing: "account not found",
	AckCreditFailed:   "credit failed",
	AckAmountMismatch: "amount mismatch",
	AckInternal:       "internal error",
}

func newAck(code int) Ack {
	observability.CallbackAcks.WithLabelValues(strconv.Itoa(code)).Inc()
	return Ack{Code: code, Message: ackMessages[code]}
}

// Verifier authenticates a callback envelope.
type Verifier interface {
	Verify(timestamp, nonce, msg, signature string) error
}

// Callback is the envelope the platform posts.
type Callback struct {
	Msg          string     `json:"msg"`
	MsgSignature string     `json:"msg_signature"`
	Type         string     `json:"type"`
	Timestamp    flexString `json:"timestamp"`
	Nonce        flexString `json:"nonce"`
}

// Message is the decoded msg field of a payment callback.
type Message struct {
	CpOrderNo   string `json:"cp_orderno"`
	OutOrderNo  string `json:"out_order_no"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	TotalAmount *int64 `json:"total_amount,omitempty"`
}

// OrderNo returns the merchant order number carried by the message.
func (m Message) OrderNo() string {
	if m.CpOrderNo != "" {
		return m.CpOrderNo
	}
	return m.OutOrderNo
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

// Settlement is the outcome of crediting a paid order.
type Settlement struct {
	OrderNo string `json:"order_no"`
	Coins   int64  `json:"coins"`
	Bonus   int64  `json:"bonus"`
	Balance int64  `json:"balance"`
}

var errCredit = errors.New("credit failed")

// Reconciler is the Webhook Reconciler.
type Reconciler struct {
	db       *sqlite.DB
	orders   *orders.Manager
	ledger   *ledger.Service
	verifier Verifier
	clock    domain.Clock
	log      *zap.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(db *sqlite.DB, om *orders.Manager, ls *ledger.Service, v Verifier, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		db:       db,
		orders:   om,
		ledger:   ls,
		verifier: v,
		clock:    domain.RealClock{},
		log:      log.Named("payment"),
	}
}

// HandleCallback processes a raw callback body and returns the Ack to send.
func (r *Reconciler) HandleCallback(ctx context.Context, body []byte) Ack {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		r.log.Warn("callback envelope unreadable", zap.Error(err))
		return newAck(AckMalformed)
	}

	if err := r.verifier.Verify(string(cb.Timestamp), string(cb.Nonce), cb.Msg, cb.MsgSignature); err != nil {
		r.log.Warn("callback rejected", zap.String("type", cb.Type), zap.Error(err))
		return newAck(AckBadSignature)
	}

	var msg Message
	if err := json.Unmarshal([]byte(cb.Msg), &msg); err != nil {
		r.log.Warn("callback msg unreadable", zap.Error(err))
		return newAck(AckMalformed)
	}

	if cb.Type != callbackTypePayment || msg.Status != statusSuccess {
		r.log.Info("callback ignored", zap.String("type", cb.Type), zap.String("status", msg.Status))
		return newAck(AckOK)
	}

	orderNo := msg.OrderNo()
	if orderNo == "" {
		return newAck(AckMalformed)
	}
	log := r.log.With(zap.String("order_no", orderNo), zap.String("platform_order_id", msg.OrderID))

	order, err := r.orders.FindByOrderNo(ctx, orderNo)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		log.Warn("callback for unknown order")
		return newAck(AckOrderNotFound)
	case err != nil:
		log.Error("order lookup failed", zap.Error(err))
		return newAck(AckInternal)
	}

	if order.Paid() {
		log.Info("order already paid")
		return newAck(AckOK)
	}
	if msg.TotalAmount != nil && *msg.TotalAmount != order.Amount {
		log.Error("callback amount mismatch",
			zap.Int64("expected", order.Amount), zap.Int64("received", *msg.TotalAmount))
		return newAck(AckAmountMismatch)
	}

	s, err := r.settle(ctx, order, msg.OrderID)
	if err != nil {
		code := ackCode(err)
		if code == AckOK {
			log.Info("order settled concurrently")
		} else {
			log.Error("settlement failed", zap.Int("ack", code), zap.Error(err))
		}
		return newAck(code)
	}

	log.Info("order settled",
		zap.String("account", logger.Redact(order.AccountID)),
		zap.Int64("coins", s.Coins),
		zap.Int64("bonus", s.Bonus),
		zap.Int64("balance", s.Balance))
	return newAck(AckOK)
}

// MockSettle settles an order without a platform callback. It returns
// domain.ErrAlreadyProcessed when the order is already paid.
func (r *Reconciler) MockSettle(ctx context.Context, orderNo string) (Settlement, error) {
	order, err := r.orders.FindByOrderNo(ctx, orderNo)
	if err != nil {
		return Settlement{}, err
	}
	if order.Paid() {
		return Settlement{}, domain.ErrAlreadyProcessed
	}

	s, err := r.settle(ctx, order, fmt.Sprintf("mock_%d", r.clock.Now().UnixMilli()))
	if err != nil {
		return Settlement{}, err
	}
	r.log.Warn("order settled without platform confirmation",
		zap.String("order_no", orderNo), zap.Int64("balance", s.Balance))
	return s, nil
}

// settle flips the order to paid and credits the account in one transaction.
func (r *Reconciler) settle(ctx context.Context, order domain.Order, platformOrderID string) (Settlement, error) {
	var res ledger.RechargeResult
	err := r.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		_, changed, err := r.orders.MarkPaidTx(ctx, tx, order.OrderNo, platformOrderID)
		if err != nil {
			return err
		}
		if !changed {
			return domain.ErrAlreadyProcessed
		}
		res, err = r.ledger.RechargeTx(ctx, tx, order.AccountID, order.Coins, order.BonusCoins, order.OrderNo)
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			// Credited through another path; only the status flip remains.
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", errCredit, err)
		}
		return nil
	})
	if err != nil {
		return Settlement{}, err
	}
	if res.Coins > 0 || res.Bonus > 0 {
		r.ledger.Committed(res)
	}
	return Settlement{OrderNo: order.OrderNo, Coins: res.Coins, Bonus: res.Bonus, Balance: res.Balance}, nil
}

func ackCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrAlreadyProcessed):
		return AckOK
	case errors.Is(err, domain.ErrOrderNotFound):
		return AckOrderNotFound
	case errors.Is(err, domain.ErrAccountNotFound):
		return AckAccountMissing
	case errors.Is(err, errCredit):
		return AckCreditFailed
	default:
		return AckInternal
	}
}
