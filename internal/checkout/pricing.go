package checkout

import (
	"context"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
)

// ShippingQuoter prices delivery for an order. Carrier lookups live outside this service.
type ShippingQuoter interface {
	Quote(ctx context.Context, to domain.ShippingInfo, subtotalCents int) (int, error)
}

// FlatRate charges RateCents per order, or nothing once the subtotal reaches FreeOverCents
// (when FreeOverCents > 0).
type FlatRate struct {
	RateCents     int
	FreeOverCents int
}

func (f FlatRate) Quote(_ context.Context, _ domain.ShippingInfo, subtotalCents int) (int, error) {
	if f.FreeOverCents > 0 && subtotalCents >= f.FreeOverCents {
		return 0, nil
	}
	return f.RateCents, nil
}

// discounted applies a percentage discount, rounding half up to the cent.
func discounted(priceCents, percent int) int {
	if percent <= 0 {
		return priceCents
	}
	if percent >= 100 {
		return 0
	}
	return (priceCents*(100-percent) + 50) / 100
}
