package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated         = "OrderCreated"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventReservationsReleased = "ReservationsReleased"
)

const envelopeVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id when there is one
	Payload       json.RawMessage `json:"payload"`
}

// New wraps payload in a v1 envelope.
func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// Decode unpacks the envelope payload into T.
func Decode[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return t, nil
}

// ---- payloads ----

type OrderLine struct {
	VariantID      string `json:"variant_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int    `json:"unit_price_cents"`
}

type OrderCreatedPayload struct {
	OrderID       string      `json:"order_id"`
	UserID        string      `json:"user_id,omitempty"`
	Email         string      `json:"email"`
	FullName      string      `json:"full_name"`
	PaymentMethod string      `json:"payment_method"`
	Items         []OrderLine `json:"items"`
	TotalCents    int         `json:"total_cents"`
	ReservedUntil time.Time   `json:"reserved_until"`
}

type OrderStatusChangedPayload struct {
	OrderID        string `json:"order_id"`
	UserID         string `json:"user_id,omitempty"`
	Email          string `json:"email"`
	From           string `json:"from"`
	To             string `json:"to"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Reason         string `json:"reason,omitempty"` // e.g. RESERVATION_EXPIRED
}

type ReleasedLine struct {
	CartID    string `json:"cart_id"`
	VariantID string `json:"variant_id"`
	Qty       int    `json:"qty"`
}

type ReservationsReleasedPayload struct {
	ItemsReleased int            `json:"items_released"`
	UnitsReleased int            `json:"units_released"`
	Lines         []ReleasedLine `json:"lines"`
}

// Publisher hands an envelope to the event transport.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, env Envelope) error
}

// Discard drops every event. Used when no broker is configured.
type Discard struct{}

func (Discard) PublishEvent(context.Context, string, Envelope) error { return nil }
