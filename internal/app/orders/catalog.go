package orders

import (
	"sort"

	"github.com/fableworks/coinledger/internal/domain"
)

// Catalog is the fixed set of purchasable coin packages.
type Catalog struct {
	plans map[string]domain.Plan
}

// NewCatalog indexes plans by product id. A plan without a SKU uses its
// product id.
func NewCatalog(plans []domain.Plan) *Catalog {
	c := &Catalog{plans: make(map[string]domain.Plan, len(plans))}
	for _, p := range plans {
		if p.SkuID == "" {
			p.SkuID = p.ProductID
		}
		c.plans[p.ProductID] = p
	}
	return c
}

// Lookup returns the plan for productID or domain.ErrUnknownProduct.
func (c *Catalog) Lookup(productID string) (domain.Plan, error) {
	p, ok := c.plans[productID]
	if !ok {
		return domain.Plan{}, domain.ErrUnknownProduct
	}
	return p, nil
}

// Plans returns every plan ordered by price.
func (c *Catalog) Plans() []domain.Plan {
	out := make([]domain.Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}
