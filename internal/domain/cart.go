package domain

import "time"

type Cart struct {
	ID        string
	UserID    string // empty for guest carts
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Cart) IsGuest() bool { return c.UserID == "" }

// Item returns the line for variantID, if any.
func (c Cart) Item(variantID string) (CartItem, bool) {
	for _, it := range c.Items {
		if it.VariantID == variantID {
			return it, true
		}
	}
	return CartItem{}, false
}

// CartItem is one line of a cart. Every line is backed by exactly one Reservation.
type CartItem struct {
	CartID        string
	VariantID     string
	Quantity      int
	ReservedAt    time.Time
	ExpiresAt     time.Time
	ReservationID string
}

// Reservation is a hold on stock counted in Stock.ReservedQty. It is held either by a
// cart line (CartID set) or, after checkout, by an order (OrderID set).
type Reservation struct {
	ID         string
	VariantID  string
	Quantity   int
	CartID     string
	OrderID    string
	ReservedAt time.Time
	ExpiresAt  time.Time
}

func (r Reservation) HeldByCart() bool  { return r.CartID != "" }
func (r Reservation) HeldByOrder() bool { return r.OrderID != "" }

// Expired reports whether the hold lapsed strictly before now.
func (r Reservation) Expired(now time.Time) bool { return r.ExpiresAt.Before(now) }

// CartItem projects a cart-held reservation as a cart line.
func (r Reservation) CartItem() CartItem {
	return CartItem{
		CartID:        r.CartID,
		VariantID:     r.VariantID,
		Quantity:      r.Quantity,
		ReservedAt:    r.ReservedAt,
		ExpiresAt:     r.ExpiresAt,
		ReservationID: r.ID,
	}
}
