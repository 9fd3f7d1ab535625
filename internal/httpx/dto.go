package httpx

import (
	"time"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
)

type cartItemResp struct {
	VariantID  string    `json:"variant_id"`
	Quantity   int       `json:"quantity"`
	ReservedAt time.Time `json:"reserved_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type cartResp struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id,omitempty"`
	Items     []cartItemResp `json:"items"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type orderItemResp struct {
	VariantID      string   `json:"variant_id"`
	SKU            string   `json:"sku"`
	Name           string   `json:"name"`
	ImageURL       string   `json:"image_url,omitempty"`
	Attributes     []string `json:"attributes,omitempty"`
	UnitPriceCents int      `json:"unit_price_cents"`
	Quantity       int      `json:"quantity"`
	LineTotalCents int      `json:"line_total_cents"`
}

type orderResp struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id,omitempty"`
	Status          string              `json:"status"`
	PaymentMethod   string              `json:"payment_method"`
	PaymentProofURL string              `json:"payment_proof_url,omitempty"`
	TrackingNumber  string              `json:"tracking_number,omitempty"`
	Shipping        domain.ShippingInfo `json:"shipping"`
	SubtotalCents   int                 `json:"subtotal_cents"`
	DiscountCents   int                 `json:"discount_cents"`
	ShippingCents   int                 `json:"shipping_cents"`
	TotalCents      int                 `json:"total_cents"`
	ReservedUntil   time.Time           `json:"reserved_until"`
	Items           []orderItemResp     `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func toCartItemResp(it domain.CartItem) cartItemResp {
	return cartItemResp{VariantID: it.VariantID, Quantity: it.Quantity, ReservedAt: it.ReservedAt, ExpiresAt: it.ExpiresAt}
}

func toCartResp(c domain.Cart) cartResp {
	items := make([]cartItemResp, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, toCartItemResp(it))
	}
	return cartResp{ID: c.ID, UserID: c.UserID, Items: items, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

func toOrderResp(o domain.Order) orderResp {
	items := make([]orderItemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResp{
			VariantID: it.VariantID, SKU: it.SKU, Name: it.Name, ImageURL: it.ImageURL,
			Attributes: it.Attributes, UnitPriceCents: it.UnitPriceCents, Quantity: it.Quantity,
			LineTotalCents: it.LineTotalCents(),
		})
	}
	return orderResp{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		PaymentMethod:   string(o.PaymentMethod),
		PaymentProofURL: o.PaymentProofURL,
		TrackingNumber:  o.TrackingNumber,
		Shipping:        o.Shipping,
		SubtotalCents:   o.SubtotalCents,
		DiscountCents:   o.DiscountCents,
		ShippingCents:   o.ShippingCents,
		TotalCents:      o.TotalCents,
		ReservedUntil:   o.ReservedUntil,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}
