package masterdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingMethod enumerates costing methods configured per product.
type PricingMethod string

const (
	// PricingFIFO consumes the oldest cost layers first.
	PricingFIFO PricingMethod = "FIFO"
	// PricingLIFO consumes the newest cost layers first.
	PricingLIFO PricingMethod = "LIFO"
	// PricingMovingAverage recalculates an average cost on each receipt.
	PricingMovingAverage PricingMethod = "MOVING_AVERAGE"
)

// IsValid reports whether the method is one of the supported variants.
func (m PricingMethod) IsValid() bool {
	switch m {
	case PricingFIFO, PricingLIFO, PricingMovingAverage:
		return true
	}
	return false
}

// Product is the catalog entity as seen by this engine: identity, pricing
// method and optional selling-price bounds. Catalog CRUD lives elsewhere.
type Product struct {
	ID            int64
	TenantID      int64
	SKU           string
	Name          string
	PricingMethod PricingMethod
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	IsActive      bool
	CreatedAt     time.Time
}

// Location is a physical or logical stock point. Identity only.
type Location struct {
	ID       int64
	TenantID int64
	Code     string
	Name     string
	IsActive bool
}

// PriceInBounds checks a unit selling price against the product's optional bounds.
func (p Product) PriceInBounds(price decimal.Decimal) bool {
	if p.MinPrice != nil && price.LessThan(*p.MinPrice) {
		return false
	}
	if p.MaxPrice != nil && price.GreaterThan(*p.MaxPrice) {
		return false
	}
	return true
}
