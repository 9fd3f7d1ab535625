// Package notify turns order events into customer emails.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-reservations/internal/events"
	kafkax "github.com/ariefcatur/go-cart-reservations/internal/kafka"
	"github.com/ariefcatur/go-cart-reservations/internal/redisx"
)

type Service struct {
	Redis       *redis.Client // nil disables dedup
	Mailer      Mailer
	ServiceName string
	Log         *zap.Logger
}

func (s *Service) log() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// Handle is the consumer handler. A redelivered event (same event_id) is sent only once;
// the dedup mark is written after the mail went out, so a failed send is retried.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		s.log().Warn("dropping undecodable message", zap.String("topic", m.Topic), zap.Error(err))
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if s.Redis != nil {
		if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
			return nil
		}
	}

	msg, ok, err := compose(env)
	if err != nil {
		s.log().Warn("dropping malformed event", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if ok {
		if err := s.Mailer.Send(ctx, msg); err != nil {
			return fmt.Errorf("send %s mail for %s: %w", env.EventType, env.CorrelationID, err)
		}
	}

	if s.Redis != nil {
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}
	return nil
}

// compose builds the customer mail for env. ok is false when the event needs no mail.
func compose(env events.Envelope) (Message, bool, error) {
	switch env.EventType {
	case events.EventOrderCreated:
		p, err := events.Decode[events.OrderCreatedPayload](env)
		if err != nil || p.Email == "" {
			return Message{}, false, err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Hi %s,\n\nWe received order %s:\n", p.FullName, p.OrderID)
		for _, it := range p.Items {
			fmt.Fprintf(&b, "  %d x %s (%s) @ %s\n", it.Qty, it.Name, it.SKU, money(it.UnitPriceCents))
		}
		fmt.Fprintf(&b, "Total: %s\n", money(p.TotalCents))
		if p.PaymentMethod == "TRANSFER" {
			fmt.Fprintf(&b, "\nPlease transfer the total and upload your proof of payment before %s.\n",
				p.ReservedUntil.UTC().Format("2006-01-02 15:04 MST"))
		}
		return Message{To: p.Email, Subject: "Order " + p.OrderID + " received", Body: b.String()}, true, nil

	case events.EventOrderStatusChanged:
		p, err := events.Decode[events.OrderStatusChangedPayload](env)
		if err != nil || p.Email == "" {
			return Message{}, false, err
		}
		body := fmt.Sprintf("Order %s is now %s.", p.OrderID, p.To)
		switch {
		case p.TrackingNumber != "" && p.To == "SHIPPED":
			body += " Tracking number: " + p.TrackingNumber + "."
		case p.Reason == "RESERVATION_EXPIRED":
			body += " Payment was not received in time and the items were returned to stock."
		}
		return Message{To: p.Email, Subject: "Order " + p.OrderID + " " + strings.ToLower(p.To), Body: body}, true, nil
	}
	return Message{}, false, nil
}

func money(cents int) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
