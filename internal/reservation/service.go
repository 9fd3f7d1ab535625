// Package reservation moves stock between available and reserved as carts change. Every
// operation runs in a single store transaction that locks the stock row before it reads
// availability, so two shoppers racing for the last unit cannot both win.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/ledger"
	"github.com/ariefcatur/go-cart-reservations/internal/metrics"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

const DefaultTTL = 15 * time.Minute

type Service struct {
	Store store.Store
	TTL   time.Duration
	// RefreshExpiryOnUpdate makes UpdateQuantity push ExpiresAt forward like AddItem does.
	RefreshExpiryOnUpdate bool
	Now                   func() time.Time
	Log                   *zap.Logger
	Metrics               *metrics.Metrics
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultTTL
}

func (s *Service) log() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// CreateOrGetCart returns the user's cart, creating it on first use. An empty userID always
// creates a new guest cart.
func (s *Service) CreateOrGetCart(ctx context.Context, userID string) (domain.Cart, error) {
	var cart domain.Cart
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if userID != "" {
			cart, err = userCart(ctx, tx, userID, s.now())
			return err
		}
		now := s.now()
		cart = domain.Cart{ID: uuid.NewString(), Items: []domain.CartItem{}, CreatedAt: now, UpdatedAt: now}
		return tx.CreateCart(ctx, cart)
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// userCart returns the user's cart, creating an empty one if there is none. When a
// concurrent call creates it first, that cart is returned.
func userCart(ctx context.Context, tx store.Tx, userID string, now time.Time) (domain.Cart, error) {
	c, err := tx.FindCartByUser(ctx, userID)
	if !errors.Is(err, domain.ErrNotFound) {
		return c, err
	}
	c = domain.Cart{ID: uuid.NewString(), UserID: userID, Items: []domain.CartItem{}, CreatedAt: now, UpdatedAt: now}
	err = tx.CreateCart(ctx, c)
	if errors.Is(err, store.ErrUserHasCart) {
		return tx.FindCartByUser(ctx, userID)
	}
	return c, err
}

func (s *Service) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	var cart domain.Cart
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.GetCart(ctx, cartID)
		cart = c
		return err
	})
	return cart, err
}

// AddItem reserves quantity more units of variantID for the cart and refreshes the line's
// expiry. Requests for more than is available fail with *domain.InsufficientStockError and
// change nothing.
func (s *Service) AddItem(ctx context.Context, cartID, variantID string, quantity int) (domain.CartItem, error) {
	if quantity <= 0 {
		return domain.CartItem{}, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidQuantity)
	}

	var item domain.CartItem
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockCart(ctx, cartID); err != nil {
			return err
		}
		_, stock, err := ledger.Lookup(ctx, tx, variantID)
		if err != nil {
			return err
		}
		available := stock.Available()
		now := s.now()

		existing, err := tx.GetCartReservation(ctx, cartID, variantID)
		switch {
		case err == nil:
			requestedTotal := existing.Quantity + quantity
			if requestedTotal > available {
				return &domain.InsufficientStockError{
					VariantID: variantID,
					Available: available,
					InCart:    existing.Quantity,
					Requested: quantity,
					MaxCanAdd: max(available-existing.Quantity, 0),
				}
			}
			if err := ledger.Reserve(ctx, tx, variantID, quantity); err != nil {
				return err
			}
			existing.Quantity = requestedTotal
			existing.ReservedAt = now
			existing.ExpiresAt = now.Add(s.ttl())
			if err := tx.UpdateReservation(ctx, existing); err != nil {
				return err
			}
			item = existing.CartItem()

		case errors.Is(err, domain.ErrNotFound):
			if quantity > available {
				return &domain.InsufficientStockError{
					VariantID: variantID,
					Available: available,
					Requested: quantity,
					MaxCanAdd: available,
				}
			}
			r := domain.Reservation{
				ID:         uuid.NewString(),
				VariantID:  variantID,
				Quantity:   quantity,
				CartID:     cartID,
				ReservedAt: now,
				ExpiresAt:  now.Add(s.ttl()),
			}
			if err := ledger.Reserve(ctx, tx, variantID, quantity); err != nil {
				return err
			}
			if err := tx.InsertReservation(ctx, r); err != nil {
				return err
			}
			item = r.CartItem()

		default:
			return err
		}
		return tx.TouchCart(ctx, cartID, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.Metrics.StockRejected("add")
		}
		return domain.CartItem{}, err
	}
	s.log().Debug("cart item reserved",
		zap.String("cart_id", cartID), zap.String("variant_id", variantID),
		zap.Int("added", quantity), zap.Int("line_qty", item.Quantity))
	return item, nil
}

// UpdateQuantity sets the line to newQuantity, reserving or releasing the difference.
// ExpiresAt is left alone unless RefreshExpiryOnUpdate is set.
func (s *Service) UpdateQuantity(ctx context.Context, cartID, variantID string, newQuantity int) (domain.CartItem, error) {
	var item domain.CartItem
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockCart(ctx, cartID); err != nil {
			return err
		}
		stock, err := tx.GetStock(ctx, variantID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		r, err := tx.GetCartReservation(ctx, cartID, variantID)
		if err != nil {
			return err
		}
		if newQuantity <= 0 {
			return fmt.Errorf("%w: use remove to drop a line", domain.ErrInvalidQuantity)
		}

		diff := newQuantity - r.Quantity
		switch {
		case diff > 0:
			if available := stock.Available(); diff > available {
				return &domain.InsufficientStockError{
					VariantID: variantID,
					Available: available,
					InCart:    r.Quantity,
					Requested: diff,
					MaxCanAdd: available,
				}
			}
			if err := ledger.Reserve(ctx, tx, variantID, diff); err != nil {
				return err
			}
		case diff < 0:
			if err := ledger.Release(ctx, tx, variantID, -diff); err != nil {
				return err
			}
		}

		now := s.now()
		r.Quantity = newQuantity
		if s.RefreshExpiryOnUpdate {
			r.ReservedAt = now
			r.ExpiresAt = now.Add(s.ttl())
		}
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		item = r.CartItem()
		return tx.TouchCart(ctx, cartID, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.Metrics.StockRejected("update")
		}
		return domain.CartItem{}, err
	}
	return item, nil
}

// RemoveItem drops the line and releases everything it held.
func (s *Service) RemoveItem(ctx context.Context, cartID, variantID string) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockCart(ctx, cartID); err != nil {
			return err
		}
		if _, err := tx.GetStock(ctx, variantID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		r, err := tx.GetCartReservation(ctx, cartID, variantID)
		if err != nil {
			return err
		}
		if err := Release(ctx, tx, r); err != nil {
			return err
		}
		return tx.TouchCart(ctx, cartID, s.now())
	})
}

// ClearCart releases and deletes every line the cart still holds. The cart itself stays so
// its token remains usable.
func (s *Service) ClearCart(ctx context.Context, cartID string) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cart, err := tx.LockCart(ctx, cartID)
		if err != nil {
			return err
		}
		for _, it := range cart.Items {
			if _, err := tx.GetStock(ctx, it.VariantID); err != nil {
				return err
			}
			r, held, err := CartHold(ctx, tx, it.ReservationID, cart.ID)
			if err != nil {
				return err
			}
			if !held {
				continue
			}
			if err := Release(ctx, tx, r); err != nil {
				return err
			}
		}
		return tx.TouchCart(ctx, cartID, s.now())
	})
}

// MergeGuestCart folds a guest cart into the user's cart at login. Lines for the same
// variant are summed; every moved line gets a fresh expiry. Reserved units only change
// holder, so the ledger is not touched. The guest cart is deleted.
func (s *Service) MergeGuestCart(ctx context.Context, guestCartID, userID string) (domain.Cart, error) {
	if userID == "" {
		return domain.Cart{}, domain.Validation("user id is required to merge a cart")
	}

	var cartID string
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		guest, err := tx.LockCart(ctx, guestCartID)
		if err != nil {
			return err
		}
		if guest.UserID == userID {
			cartID = guest.ID
			return nil
		}
		if !guest.IsGuest() {
			return fmt.Errorf("%w: cart %s belongs to another user", domain.ErrForbidden, guestCartID)
		}

		now := s.now()
		target, err := userCart(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if target, err = tx.LockCart(ctx, target.ID); err != nil {
			return err
		}
		cartID = target.ID

		for _, it := range guest.Items {
			if _, err := tx.GetStock(ctx, it.VariantID); err != nil {
				return err
			}
			moved, ok, err := CartHold(ctx, tx, it.ReservationID, guest.ID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if line, found := target.Item(it.VariantID); found {
				r, ok, err := CartHold(ctx, tx, line.ReservationID, target.ID)
				if err != nil {
					return err
				}
				if ok {
					r.Quantity += moved.Quantity
					r.ReservedAt, r.ExpiresAt = now, now.Add(s.ttl())
					if err := tx.DeleteReservation(ctx, moved.ID); err != nil {
						return err
					}
					if err := tx.UpdateReservation(ctx, r); err != nil {
						return err
					}
					continue
				}
			}
			moved.CartID = target.ID
			moved.ReservedAt, moved.ExpiresAt = now, now.Add(s.ttl())
			if err := tx.UpdateReservation(ctx, moved); err != nil {
				return err
			}
		}
		if err := tx.DeleteCart(ctx, guest.ID); err != nil {
			return err
		}
		return tx.TouchCart(ctx, target.ID, now)
	})
	if err != nil {
		return domain.Cart{}, err
	}
	s.log().Info("guest cart merged", zap.String("guest_cart_id", guestCartID), zap.String("cart_id", cartID))
	return s.GetCart(ctx, cartID)
}
