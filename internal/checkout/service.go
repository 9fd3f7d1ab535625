// Package checkout turns carts into orders and drives the ledger through the order
// lifecycle. Reservations taken by the cart are handed to the order at checkout and are
// only consumed (PAID) or released (CANCELLED) by a status transition.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/events"
	"github.com/ariefcatur/go-cart-reservations/internal/ledger"
	"github.com/ariefcatur/go-cart-reservations/internal/metrics"
	"github.com/ariefcatur/go-cart-reservations/internal/reservation"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

const DefaultOrderHold = 24 * time.Hour

// StatusRecorder is told about every committed status change; *redisx.StatusCache
// implements it.
type StatusRecorder interface {
	Set(ctx context.Context, orderID, status string, updatedAt time.Time) error
}

type Service struct {
	Store                   store.Store
	Shipping                ShippingQuoter
	Publisher               events.Publisher
	ServiceName             string
	TransferDiscountPercent int
	OrderHold               time.Duration
	// StrictTransitions rejects status changes outside the lifecycle graph instead of
	// overwriting the status without touching the ledger.
	StrictTransitions bool
	Statuses          StatusRecorder // optional
	Now               func() time.Time
	Log               *zap.Logger
	Metrics           *metrics.Metrics
}

type Request struct {
	CartID        string
	UserID        string // caller identity; must match the cart owner for user carts
	Shipping      domain.ShippingInfo
	PaymentMethod domain.PaymentMethod
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

func (s *Service) hold() time.Duration {
	if s.OrderHold > 0 {
		return s.OrderHold
	}
	return DefaultOrderHold
}

func (s *Service) shippingQuote(ctx context.Context, to domain.ShippingInfo, subtotal int) (int, error) {
	if s.Shipping == nil {
		return 0, nil
	}
	return s.Shipping.Quote(ctx, to, subtotal)
}

func validate(req Request) error {
	if req.CartID == "" {
		return domain.Validation("cart id is required")
	}
	if !req.PaymentMethod.Valid() {
		return domain.Validation("invalid payment method %q", req.PaymentMethod)
	}
	if missing := req.Shipping.Missing(); len(missing) > 0 {
		return domain.Validation("missing shipping fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Checkout creates a PENDING order from the cart. Each line's quantity is checked against
// the variant's total stock (the units are already reserved by this cart), prices are
// frozen into the order items, and the cart's reservations move to the order. The ledger
// itself is not touched.
func (s *Service) Checkout(ctx context.Context, req Request) (domain.Order, error) {
	if err := validate(req); err != nil {
		return domain.Order{}, err
	}

	var order domain.Order
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cart, err := tx.LockCart(ctx, req.CartID)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return fmt.Errorf("cart %s: %w", cart.ID, domain.ErrEmptyCart)
		}
		if !cart.IsGuest() && cart.UserID != req.UserID {
			return fmt.Errorf("%w: cart %s belongs to another user", domain.ErrForbidden, cart.ID)
		}

		now := s.now()
		order = domain.Order{
			ID:            uuid.NewString(),
			UserID:        cart.UserID,
			Status:        domain.StatusPending,
			PaymentMethod: req.PaymentMethod,
			Shipping:      req.Shipping,
			ReservedUntil: now.Add(s.hold()),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		percent := 0
		if req.PaymentMethod == domain.PaymentTransfer {
			percent = s.TransferDiscountPercent
		}

		held := make([]domain.Reservation, 0, len(cart.Items))
		for _, it := range cart.Items {
			variant, stock, err := ledger.Lookup(ctx, tx, it.VariantID)
			if err != nil {
				return err
			}
			r, ok, err := reservation.CartHold(ctx, tx, it.ReservationID, cart.ID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if r.Quantity > stock.Quantity {
				return &domain.InsufficientStockError{
					VariantID: r.VariantID,
					Available: stock.Quantity,
					Requested: r.Quantity,
					InCart:    r.Quantity,
				}
			}
			list := variant.UnitPriceCents()
			unit := discounted(list, percent)
			order.SubtotalCents += list * r.Quantity
			order.DiscountCents += (list - unit) * r.Quantity
			order.Items = append(order.Items, domain.OrderItem{
				ID:             uuid.NewString(),
				OrderID:        order.ID,
				VariantID:      variant.ID,
				SKU:            variant.SKU,
				Name:           variant.Name,
				ImageURL:       variant.ImageURL,
				Attributes:     variant.Attributes,
				UnitPriceCents: unit,
				Quantity:       r.Quantity,
			})
			held = append(held, r)
		}
		// every line expired or moved since the cart was listed
		if len(held) == 0 {
			return fmt.Errorf("cart %s: %w", cart.ID, domain.ErrEmptyCart)
		}

		order.ShippingCents, err = s.shippingQuote(ctx, req.Shipping, order.SubtotalCents-order.DiscountCents)
		if err != nil {
			return fmt.Errorf("shipping quote: %w", err)
		}
		order.TotalCents = order.SubtotalCents - order.DiscountCents + order.ShippingCents

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for _, r := range held {
			r.CartID, r.OrderID = "", order.ID
			r.ExpiresAt = order.ReservedUntil
			if err := tx.UpdateReservation(ctx, r); err != nil {
				return err
			}
		}
		return tx.TouchCart(ctx, cart.ID, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.Metrics.StockRejected("checkout")
		}
		return domain.Order{}, err
	}

	s.log().Info("order created",
		zap.String("order_id", order.ID), zap.String("cart_id", req.CartID),
		zap.Int("total_cents", order.TotalCents), zap.String("payment_method", string(order.PaymentMethod)))
	s.recordStatus(ctx, order)
	s.publish(ctx, events.TopicOrderCreated, events.EventOrderCreated, order.ID, orderCreatedPayload(order))
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		order = o
		return err
	})
	return order, err
}

// UploadPaymentProof attaches transfer evidence to a pending TRANSFER order owned by userID.
func (s *Service) UploadPaymentProof(ctx context.Context, orderID, userID, url string) (domain.Order, error) {
	if strings.TrimSpace(url) == "" {
		return domain.Order{}, domain.Validation("payment proof url is required")
	}

	var order domain.Order
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID == "" || o.UserID != userID {
			return fmt.Errorf("%w: order %s is not yours", domain.ErrForbidden, orderID)
		}
		if o.PaymentMethod != domain.PaymentTransfer {
			return domain.InvalidState("order %s is paid by %s, not TRANSFER", orderID, o.PaymentMethod)
		}
		if o.Status != domain.StatusPending {
			return domain.InvalidState("order %s is %s, proof is only accepted while PENDING", orderID, o.Status)
		}
		o.PaymentProofURL = url
		o.UpdatedAt = s.now()
		order = o
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.log().Info("payment proof attached", zap.String("order_id", orderID))
	return order, nil
}

func (s *Service) recordStatus(ctx context.Context, o domain.Order) {
	if s.Statuses == nil {
		return
	}
	if err := s.Statuses.Set(ctx, o.ID, string(o.Status), o.UpdatedAt); err != nil {
		s.log().Debug("status cache write failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	if s.Publisher == nil {
		return
	}
	env, err := events.New(eventType, s.ServiceName, orderID, payload)
	if err == nil {
		err = s.Publisher.PublishEvent(ctx, topic, env)
	}
	if err != nil {
		s.log().Warn("event not published",
			zap.String("event_type", eventType), zap.String("order_id", orderID), zap.Error(err))
	}
}

func orderCreatedPayload(o domain.Order) events.OrderCreatedPayload {
	lines := make([]events.OrderLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, events.OrderLine{
			VariantID: it.VariantID, SKU: it.SKU, Name: it.Name,
			Qty: it.Quantity, UnitPriceCents: it.UnitPriceCents,
		})
	}
	return events.OrderCreatedPayload{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Email:         o.Shipping.Email,
		FullName:      o.Shipping.FullName,
		PaymentMethod: string(o.PaymentMethod),
		Items:         lines,
		TotalCents:    o.TotalCents,
		ReservedUntil: o.ReservedUntil,
	}
}
