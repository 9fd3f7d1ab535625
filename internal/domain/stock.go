package domain

import "time"

// Variant is a purchasable SKU of a product. Catalog management lives elsewhere; this is
// the read model the cart and checkout need.
type Variant struct {
	ID              string
	ProductID       string
	SKU             string
	Name            string
	PriceCents      int
	PromoPriceCents *int // promotional price, nil when no promotion is running
	ImageURL        string
	Attributes      []string // display labels, e.g. "Size: M"
}

// UnitPriceCents is the effective price a shopper pays before payment-method discounts.
func (v Variant) UnitPriceCents() int {
	if v.PromoPriceCents != nil {
		return *v.PromoPriceCents
	}
	return v.PriceCents
}

// Stock is the ledger row of a variant.
type Stock struct {
	VariantID   string
	Quantity    int // physical units owned
	ReservedQty int // units held by cart lines and unpaid orders
	UpdatedAt   time.Time
}

// Available is the quantity that can still be promised to new reservations.
func (s Stock) Available() int { return s.Quantity - s.ReservedQty }
