package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/events"
	"github.com/ariefcatur/go-cart-reservations/internal/ledger"
	"github.com/ariefcatur/go-cart-reservations/internal/reservation"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

const reasonReservationExpired = "RESERVATION_EXPIRED"

// Transition moves the order to newStatus and applies the ledger effect of the change:
//
//	PENDING -> PAID            consume the order's reservations (all lines or none)
//	PENDING -> CANCELLED       release the order's reservations
//	PAID|SHIPPED -> CANCELLED  restock the sold units
//
// SHIPPED needs a tracking number. Any other pair only overwrites the status, or is
// rejected with ErrInvalidState when StrictTransitions is set.
func (s *Service) Transition(ctx context.Context, orderID string, newStatus domain.Status, trackingNumber string) (domain.Order, error) {
	if !newStatus.Valid() {
		return domain.Order{}, domain.Validation("invalid status %q", newStatus)
	}
	trackingNumber = strings.TrimSpace(trackingNumber)
	if newStatus == domain.StatusShipped && trackingNumber == "" {
		return domain.Order{}, domain.Validation("tracking number is required to ship")
	}

	var (
		order domain.Order
		from  domain.Status
	)
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		from = o.Status
		order, err = s.apply(ctx, tx, o, newStatus, trackingNumber)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.Metrics.StockRejected("pay")
		}
		return domain.Order{}, err
	}

	s.Metrics.Transitioned(string(from), string(newStatus))
	s.recordStatus(ctx, order)
	s.log().Info("order status changed",
		zap.String("order_id", orderID), zap.String("from", string(from)), zap.String("to", string(newStatus)))
	s.publish(ctx, events.TopicOrderStatusChanged, events.EventOrderStatusChanged, orderID, events.OrderStatusChangedPayload{
		OrderID: orderID, UserID: order.UserID, Email: order.Shipping.Email,
		From: string(from), To: string(newStatus), TrackingNumber: order.TrackingNumber,
	})
	return order, nil
}

func (s *Service) apply(ctx context.Context, tx store.Tx, o domain.Order, to domain.Status, tracking string) (domain.Order, error) {
	if s.StrictTransitions && !domain.CanTransition(o.Status, to) {
		return domain.Order{}, domain.InvalidState("order %s cannot go from %s to %s", o.ID, o.Status, to)
	}

	switch domain.EffectOf(o.Status, to) {
	case domain.EffectConsume:
		held, err := heldByVariant(ctx, tx, o.ID)
		if err != nil {
			return domain.Order{}, err
		}
		for _, it := range o.Items {
			r, ok := held[it.VariantID]
			if !ok {
				return domain.Order{}, domain.InvalidState("order %s holds no reservation for %s", o.ID, it.VariantID)
			}
			if err := reservation.Consume(ctx, tx, r); err != nil {
				return domain.Order{}, err
			}
		}
	case domain.EffectRelease:
		if err := s.releaseOrder(ctx, tx, o.ID); err != nil {
			return domain.Order{}, err
		}
	case domain.EffectRestock:
		for _, it := range o.Items {
			if _, err := tx.GetStock(ctx, it.VariantID); err != nil {
				return domain.Order{}, err
			}
			if err := ledger.Restock(ctx, tx, it.VariantID, it.Quantity); err != nil {
				return domain.Order{}, err
			}
		}
	}

	o.Status = to
	if to == domain.StatusShipped {
		o.TrackingNumber = tracking
	}
	o.UpdatedAt = s.now()
	if err := tx.UpdateOrder(ctx, o); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func heldByVariant(ctx context.Context, tx store.Tx, orderID string) (map[string]domain.Reservation, error) {
	rs, err := tx.ListOrderReservations(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Reservation, len(rs))
	for _, r := range rs {
		out[r.VariantID] = r
	}
	return out, nil
}

func (s *Service) releaseOrder(ctx context.Context, tx store.Tx, orderID string) error {
	rs, err := tx.ListOrderReservations(ctx, orderID)
	if err != nil {
		return err
	}
	for _, r := range rs {
		if _, err := tx.GetStock(ctx, r.VariantID); err != nil {
			return err
		}
		if err := reservation.Release(ctx, tx, r); err != nil {
			return err
		}
	}
	return nil
}

// ExpirePendingOrders cancels PENDING orders whose reservation deadline passed before now,
// releasing their holds. Each order is its own transaction; failures are logged and
// skipped. It returns how many orders were cancelled.
func (s *Service) ExpirePendingOrders(ctx context.Context, now time.Time, limit int) (int, error) {
	var ids []string
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ids, err = tx.ListExpiredPendingOrders(ctx, now, limit)
		return err
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		var order domain.Order
		cancelled := false
		err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			o, err := tx.GetOrder(ctx, id)
			if err != nil {
				return err
			}
			// paid or cancelled since it was listed
			if o.Status != domain.StatusPending || !o.ReservedUntil.Before(now) {
				return nil
			}
			order, err = s.apply(ctx, tx, o, domain.StatusCancelled, "")
			cancelled = err == nil
			return err
		})
		if err != nil {
			s.log().Warn("expire order failed", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if !cancelled {
			continue
		}
		expired++
		s.Metrics.Transitioned(string(domain.StatusPending), string(domain.StatusCancelled))
		s.recordStatus(ctx, order)
		s.publish(ctx, events.TopicOrderStatusChanged, events.EventOrderStatusChanged, id, events.OrderStatusChangedPayload{
			OrderID: id, UserID: order.UserID, Email: order.Shipping.Email,
			From: string(domain.StatusPending), To: string(domain.StatusCancelled), Reason: reasonReservationExpired,
		})
	}
	return expired, nil
}
