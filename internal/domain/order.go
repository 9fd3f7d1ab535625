package domain

import "time"

type PaymentMethod string

const (
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentCard     PaymentMethod = "CARD"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentTransfer || m == PaymentCard
}

type ShippingInfo struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

// Missing lists the required fields that are blank.
func (s ShippingInfo) Missing() []string {
	var out []string
	for _, f := range []struct{ name, v string }{
		{"full_name", s.FullName},
		{"email", s.Email},
		{"phone", s.Phone},
		{"address", s.Address},
		{"city", s.City},
		{"postal_code", s.PostalCode},
	} {
		if f.v == "" {
			out = append(out, f.name)
		}
	}
	return out
}

type Order struct {
	ID              string
	UserID          string
	Status          Status
	PaymentMethod   PaymentMethod
	PaymentProofURL string
	TrackingNumber  string
	Shipping        ShippingInfo
	SubtotalCents   int
	DiscountCents   int
	ShippingCents   int
	TotalCents      int
	ReservedUntil   time.Time
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is a frozen copy of the catalog at purchase time; later catalog edits never
// reach it.
type OrderItem struct {
	ID             string
	OrderID        string
	VariantID      string
	SKU            string
	Name           string
	ImageURL       string
	Attributes     []string
	UnitPriceCents int // after payment-method discount
	Quantity       int
}

func (i OrderItem) LineTotalCents() int { return i.UnitPriceCents * i.Quantity }
