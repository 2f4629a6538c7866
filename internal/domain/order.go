package domain

import "time"

// ─── Order Types ────────────────────────────────────────────────────────────

// OrderStatus is the lifecycle state of a top-up order.
type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
	OrderExpired OrderStatus = "expired"
)

// Order is one purchase attempt, correlated with the payment platform by OrderNo.
// BonusCoins is fixed when the order is created.
type Order struct {
	ID              int64       `json:"id"`
	OrderNo         string      `json:"order_no"`
	AccountID       string      `json:"account_id"`
	ProductID       string      `json:"product_id"`
	Amount          int64       `json:"amount"`
	Coins           int64       `json:"coins"`
	BonusCoins      int64       `json:"bonus_coins"`
	Status          OrderStatus `json:"status"`
	Mock            bool        `json:"mock,omitempty"`
	PlatformOrderID string      `json:"platform_order_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	PaidAt          *time.Time  `json:"paid_at,omitempty"`
	ExpiredAt       *time.Time  `json:"expired_at,omitempty"`
}

// Paid reports whether the order has been settled.
func (o Order) Paid() bool { return o.Status == OrderPaid }

// TotalCoins is what the account receives once the order is paid.
func (o Order) TotalCoins() int64 { return o.Coins + o.BonusCoins }

// Plan is a purchasable coin package from the product catalog.
// Price is in the smallest currency unit (cents).
type Plan struct {
	ProductID string `json:"product_id" toml:"product_id"`
	Name      string `json:"name" toml:"name"`
	Coins     int64  `json:"coins" toml:"coins"`
	Price     int64  `json:"price" toml:"price"`
	SkuID     string `json:"sku_id" toml:"sku_id"`
}
