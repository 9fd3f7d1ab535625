package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

var errRollback = errors.New("rollback")

// RunContract checks the behaviour every store.Store implementation must share. newStore
// must return an empty store, or one where fresh uuids never collide.
func RunContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("variant and stock", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()
		promo := 900
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.CreateVariant(ctx, domain.Variant{
				ID: id, ProductID: "p", SKU: "sku-" + id, Name: "Hat", PriceCents: 1000,
				PromoPriceCents: &promo, Attributes: []string{"Color: Red"},
			}, 7)
		}))
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			v, err := tx.GetVariant(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 900, v.UnitPriceCents())
			assert.Equal(t, []string{"Color: Red"}, v.Attributes)
			return nil
		}))
		assert.Equal(t, [2]int{7, 0}, Counters(t, s, id))

		Adjust(t, s, id, -2, 3)
		assert.Equal(t, [2]int{5, 3}, Counters(t, s, id))

		err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.AdjustStock(ctx, id, 0, -4)
		})
		assert.Error(t, err, "reserved must not go negative")
		assert.Equal(t, [2]int{5, 3}, Counters(t, s, id))
	})

	t.Run("missing rows are ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		missing := uuid.NewString()
		_ = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			_, err := tx.GetVariant(ctx, missing)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			_, err = tx.GetStock(ctx, missing)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			_, err = tx.GetCart(ctx, missing)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			_, err = tx.GetOrder(ctx, missing)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			_, err = tx.GetReservation(ctx, missing)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			assert.ErrorIs(t, tx.AdjustStock(ctx, missing, 1, 0), domain.ErrNotFound)
			return nil
		})
	})

	t.Run("error rolls back every write", func(t *testing.T) {
		s := newStore(t)
		v := Variant(t, s, uuid.NewString(), 100, 5)
		cartID := uuid.NewString()
		err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			require.NoError(t, tx.CreateCart(ctx, domain.Cart{ID: cartID, CreatedAt: base, UpdatedAt: base}))
			require.NoError(t, tx.AdjustStock(ctx, v.ID, 0, 2))
			return errRollback
		})
		require.ErrorIs(t, err, errRollback)
		assert.Equal(t, [2]int{5, 0}, Counters(t, s, v.ID))
		_ = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			_, err := tx.GetCart(ctx, cartID)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			return nil
		})
	})

	t.Run("cart reservations", func(t *testing.T) {
		s := newStore(t)
		a := Variant(t, s, uuid.NewString(), 100, 5)
		b := Variant(t, s, uuid.NewString(), 100, 5)
		user := uuid.NewString()
		cart := domain.Cart{ID: uuid.NewString(), UserID: user, CreatedAt: base, UpdatedAt: base}
		ra := domain.Reservation{ID: uuid.NewString(), VariantID: a.ID, Quantity: 2, CartID: cart.ID, ReservedAt: base, ExpiresAt: base.Add(time.Minute)}
		rb := domain.Reservation{ID: uuid.NewString(), VariantID: b.ID, Quantity: 1, CartID: cart.ID, ReservedAt: base, ExpiresAt: base.Add(-time.Minute)}

		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			require.NoError(t, tx.CreateCart(ctx, cart))
			require.NoError(t, tx.InsertReservation(ctx, ra))
			return tx.InsertReservation(ctx, rb)
		}))

		dup := ra
		dup.ID = uuid.NewString()
		err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertReservation(ctx, dup)
		})
		assert.Error(t, err, "one line per variant per cart")

		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			c, err := tx.FindCartByUser(ctx, user)
			require.NoError(t, err)
			assert.Equal(t, cart.ID, c.ID)
			require.Len(t, c.Items, 2)
			got, ok := c.Item(a.ID)
			require.True(t, ok)
			assert.Equal(t, 2, got.Quantity)
			assert.Equal(t, ra.ID, got.ReservationID)

			expired, err := tx.ListExpiredCartReservations(ctx, base, 0)
			require.NoError(t, err)
			ids := reservationIDs(expired)
			assert.Contains(t, ids, rb.ID)
			assert.NotContains(t, ids, ra.ID)
			return nil
		}))

		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			second := domain.Cart{ID: uuid.NewString(), UserID: user, CreatedAt: base, UpdatedAt: base}
			require.ErrorIs(t, tx.CreateCart(ctx, second), store.ErrUserHasCart)

			// the transaction is still usable after the refused insert
			locked, err := tx.LockCart(ctx, cart.ID)
			require.NoError(t, err)
			assert.Len(t, locked.Items, 2)
			_, err = tx.GetCart(ctx, second.ID)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			return nil
		}))

		err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.DeleteCart(ctx, cart.ID)
		})
		assert.Error(t, err, "cart still holds reservations")
	})

	t.Run("orders", func(t *testing.T) {
		s := newStore(t)
		v := Variant(t, s, uuid.NewString(), 100, 5)
		o := domain.Order{
			ID: uuid.NewString(), UserID: "u1", Status: domain.StatusPending, PaymentMethod: domain.PaymentCard,
			Shipping:      domain.ShippingInfo{FullName: "A", Email: "a@x", Phone: "1", Address: "St", City: "C", PostalCode: "9"},
			SubtotalCents: 200, TotalCents: 200, ReservedUntil: base.Add(-time.Second),
			Items: []domain.OrderItem{{ID: uuid.NewString(), VariantID: v.ID, SKU: v.SKU, Name: v.Name, UnitPriceCents: 100, Quantity: 2}},
			CreatedAt: base, UpdatedAt: base,
		}
		r := domain.Reservation{ID: uuid.NewString(), VariantID: v.ID, Quantity: 2, OrderID: o.ID, ReservedAt: base, ExpiresAt: o.ReservedUntil}
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			require.NoError(t, tx.InsertOrder(ctx, o))
			return tx.InsertReservation(ctx, r)
		}))

		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			ids, err := tx.ListExpiredPendingOrders(ctx, base, 0)
			require.NoError(t, err)
			assert.Contains(t, ids, o.ID)

			held, err := tx.ListOrderReservations(ctx, o.ID)
			require.NoError(t, err)
			require.Len(t, held, 1)
			assert.True(t, held[0].HeldByOrder())

			expired, err := tx.ListExpiredCartReservations(ctx, base.Add(time.Hour), 0)
			require.NoError(t, err)
			assert.NotContains(t, reservationIDs(expired), r.ID, "order holds are not cart holds")

			got, err := tx.GetOrder(ctx, o.ID)
			require.NoError(t, err)
			got.Status = domain.StatusPaid
			got.UpdatedAt = base.Add(time.Minute)
			return tx.UpdateOrder(ctx, got)
		}))

		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			got, err := tx.GetOrder(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusPaid, got.Status)
			require.Len(t, got.Items, 1)
			assert.Equal(t, 2, got.Items[0].Quantity)
			assert.Equal(t, o.Shipping, got.Shipping)

			ids, err := tx.ListExpiredPendingOrders(ctx, base, 0)
			require.NoError(t, err)
			assert.NotContains(t, ids, o.ID)
			return nil
		}))
	})
}

func reservationIDs(rs []domain.Reservation) []string {
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}
