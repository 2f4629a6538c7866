// Package orders implements the Order Manager: order-number generation,
// order creation with the first-charge bonus decision, and status reads.
package orders

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fableworks/coinledger/internal/domain"
	"github.com/fableworks/coinledger/internal/infra/observability"
	"github.com/fableworks/coinledger/internal/infra/sqlite"
	"github.com/fableworks/coinledger/pkg/logger"
)

// maxOrderNoAttempts bounds regeneration after an order-number collision.
const maxOrderNoAttempts = 3

// Manager is the Order Manager.
type Manager struct {
	db      *sqlite.DB
	catalog *Catalog
	bonus   int64
	prefix  string
	clock   domain.Clock
	log     *zap.Logger
}

// New creates an Order Manager. bonus is the first-charge bonus in coins.
func New(db *sqlite.DB, catalog *Catalog, bonus int64, prefix string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		db:      db,
		catalog: catalog,
		bonus:   bonus,
		prefix:  prefix,
		clock:   domain.RealClock{},
		log:     log.Named("orders"),
	}
}

// SetClock overrides the clock used for order numbers.
func (m *Manager) SetClock(c domain.Clock) { m.clock = c }

// Catalog returns the product catalog.
func (m *Manager) Catalog() *Catalog { return m.catalog }

// NewOrderNo returns <prefix><yyyyMMddHHmmss><6 random digits>.
func NewOrderNo(prefix string, now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		n = big.NewInt(now.UnixNano() % 1_000_000)
	}
	return fmt.Sprintf("%s%s%06d", prefix, now.Format("20060102150405"), n.Int64())
}

// Create persists a pending order for plan. The first-charge flag is read in
// the same transaction as the insert, so the bonus reflects the account at
// creation time.
func (m *Manager) Create(ctx context.Context, accountID, orderNo string, plan domain.Plan, mock bool) (domain.Order, error) {
	var order domain.Order
	err := m.db.WithTx(ctx, func(tx *sqlite.Tx) error {
		acct, err := tx.Account(ctx, accountID)
		if err != nil {
			return err
		}
		var bonus int64
		if acct.FirstCharge {
			bonus = m.bonus
		}
		order, err = tx.InsertOrder(ctx, domain.Order{
			OrderNo:    orderNo,
			AccountID:  accountID,
			ProductID:  plan.ProductID,
			Amount:     plan.Price,
			Coins:      plan.Coins,
			BonusCoins: bonus,
			Mock:       mock,
		})
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	observability.OrdersCreated.WithLabelValues(plan.ProductID, strconv.FormatBool(mock)).Inc()
	m.log.Info("order created",
		zap.String("order_no", order.OrderNo),
		zap.String("account", logger.Redact(accountID)),
		zap.String("product", plan.ProductID),
		zap.Int64("amount", order.Amount),
		zap.Int64("coins", order.Coins),
		zap.Int64("bonus", order.BonusCoins),
		zap.Bool("mock", mock))
	return order, nil
}

// Place looks up productID and creates an order under a fresh order number,
// regenerating the number on collision.
func (m *Manager) Place(ctx context.Context, accountID, productID string, mock bool) (domain.Order, domain.Plan, error) {
	plan, err := m.catalog.Lookup(productID)
	if err != nil {
		return domain.Order{}, domain.Plan{}, err
	}
	for attempt := 1; ; attempt++ {
		order, err := m.Create(ctx, accountID, NewOrderNo(m.prefix, m.clock.Now()), plan, mock)
		if errors.Is(err, domain.ErrOrderExists) && attempt < maxOrderNoAttempts {
			m.log.Warn("order number collision, retrying", zap.Int("attempt", attempt))
			continue
		}
		return order, plan, err
	}
}

// MarkPaidTx moves an order to paid inside tx. When the order is already paid
// the stored record is returned with changed=false.
func (m *Manager) MarkPaidTx(ctx context.Context, tx *sqlite.Tx, orderNo, platformOrderID string) (domain.Order, bool, error) {
	return tx.MarkOrderPaid(ctx, orderNo, platformOrderID)
}

// FindByOrderNo returns the order or domain.ErrOrderNotFound.
func (m *Manager) FindByOrderNo(ctx context.Context, orderNo string) (domain.Order, error) {
	return m.db.Order(ctx, orderNo)
}

// List returns an account's orders, newest first.
func (m *Manager) List(ctx context.Context, accountID string, limit int) ([]domain.Order, error) {
	return m.db.ListOrders(ctx, accountID, limit)
}

// ExpireStale marks pending orders older than age as expired.
func (m *Manager) ExpireStale(ctx context.Context, age time.Duration) (int64, error) {
	n, err := m.db.ExpireOrders(ctx, m.clock.Now().Add(-age))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.OrdersExpired.Add(float64(n))
		m.log.Info("expired stale orders", zap.Int64("count", n), zap.Duration("age", age))
	}
	return n, nil
}
