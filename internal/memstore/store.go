// Package memstore is an in-memory store.Store on hashicorp/go-memdb. Write transactions
// are exclusive, so every check-then-write sequence inside WithinTx is serialized, and an
// error aborts the transaction leaving no partial writes.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

var errNegativeCounter = errors.New("stock counter would go negative")

type Store struct {
	db *memdb.MemDB
}

func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("memdb: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := fn(ctx, &tx{txn: txn}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

type tx struct{ txn *memdb.Txn }

var _ store.Tx = (*tx)(nil)

func (t *tx) first(table, index string, args ...any) (any, error) {
	raw, err := t.txn.First(table, index, args...)
	if err != nil {
		return nil, fmt.Errorf("%s lookup: %w", table, err)
	}
	return raw, nil
}

// ---- catalog ----

func (t *tx) CreateVariant(_ context.Context, v domain.Variant, quantity int) error {
	if quantity < 0 {
		return errNegativeCounter
	}
	if raw, err := t.first(tableVariant, "id", v.ID); err != nil {
		return err
	} else if raw != nil {
		return fmt.Errorf("variant %s already exists", v.ID)
	}
	if err := t.txn.Insert(tableVariant, copyVariant(v)); err != nil {
		return err
	}
	return t.txn.Insert(tableStock, &domain.Stock{VariantID: v.ID, Quantity: quantity, UpdatedAt: time.Now()})
}

func (t *tx) GetVariant(_ context.Context, id string) (domain.Variant, error) {
	raw, err := t.first(tableVariant, "id", id)
	if err != nil {
		return domain.Variant{}, err
	}
	if raw == nil {
		return domain.Variant{}, domain.NotFound("variant", id)
	}
	return *copyVariant(*raw.(*domain.Variant)), nil
}

// ---- ledger ----

func (t *tx) GetStock(_ context.Context, variantID string) (domain.Stock, error) {
	raw, err := t.first(tableStock, "id", variantID)
	if err != nil {
		return domain.Stock{}, err
	}
	if raw == nil {
		return domain.Stock{}, domain.NotFound("stock", variantID)
	}
	return *raw.(*domain.Stock), nil
}

func (t *tx) AdjustStock(ctx context.Context, variantID string, quantityDelta, reservedDelta int) error {
	s, err := t.GetStock(ctx, variantID)
	if err != nil {
		return err
	}
	s.Quantity += quantityDelta
	s.ReservedQty += reservedDelta
	if s.Quantity < 0 || s.ReservedQty < 0 {
		return fmt.Errorf("stock %s: %w", variantID, errNegativeCounter)
	}
	s.UpdatedAt = time.Now()
	return t.txn.Insert(tableStock, &s)
}

// ---- carts ----

func (t *tx) CreateCart(_ context.Context, c domain.Cart) error {
	if c.UserID != "" {
		if raw, err := t.first(tableCart, "user", c.UserID); err != nil {
			return err
		} else if raw != nil {
			return fmt.Errorf("cart for user %s: %w", c.UserID, store.ErrUserHasCart)
		}
	}
	c.Items = nil
	return t.txn.Insert(tableCart, &c)
}

func (t *tx) GetCart(ctx context.Context, id string) (domain.Cart, error) {
	raw, err := t.first(tableCart, "id", id)
	if err != nil {
		return domain.Cart{}, err
	}
	if raw == nil {
		return domain.Cart{}, domain.NotFound("cart", id)
	}
	return t.withItems(ctx, *raw.(*domain.Cart))
}

// LockCart needs no row lock here: the write transaction is already exclusive.
func (t *tx) LockCart(ctx context.Context, id string) (domain.Cart, error) {
	return t.GetCart(ctx, id)
}

func (t *tx) FindCartByUser(ctx context.Context, userID string) (domain.Cart, error) {
	raw, err := t.first(tableCart, "user", userID)
	if err != nil {
		return domain.Cart{}, err
	}
	if raw == nil {
		return domain.Cart{}, domain.NotFound("cart for user", userID)
	}
	return t.withItems(ctx, *raw.(*domain.Cart))
}

func (t *tx) withItems(ctx context.Context, c domain.Cart) (domain.Cart, error) {
	rs, err := t.ListCartReservations(ctx, c.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	c.Items = make([]domain.CartItem, 0, len(rs))
	for _, r := range rs {
		c.Items = append(c.Items, r.CartItem())
	}
	return c, nil
}

func (t *tx) TouchCart(_ context.Context, id string, at time.Time) error {
	raw, err := t.first(tableCart, "id", id)
	if err != nil {
		return err
	}
	if raw == nil {
		return domain.NotFound("cart", id)
	}
	c := *raw.(*domain.Cart)
	c.UpdatedAt = at
	return t.txn.Insert(tableCart, &c)
}

func (t *tx) DeleteCart(_ context.Context, id string) error {
	raw, err := t.first(tableCart, "id", id)
	if err != nil {
		return err
	}
	if raw == nil {
		return domain.NotFound("cart", id)
	}
	if held, err := t.first(tableReservation, "cart", id); err != nil {
		return err
	} else if held != nil {
		return fmt.Errorf("cart %s still holds reservations", id)
	}
	return t.txn.Delete(tableCart, raw)
}

// ---- reservations ----

func (t *tx) GetReservation(_ context.Context, id string) (domain.Reservation, error) {
	raw, err := t.first(tableReservation, "id", id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if raw == nil {
		return domain.Reservation{}, domain.NotFound("reservation", id)
	}
	return *raw.(*domain.Reservation), nil
}

func (t *tx) GetCartReservation(_ context.Context, cartID, variantID string) (domain.Reservation, error) {
	raw, err := t.first(tableReservation, "cart_variant", cartID, variantID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if raw == nil {
		return domain.Reservation{}, domain.NotFound("cart item", cartID+"/"+variantID)
	}
	return *raw.(*domain.Reservation), nil
}

func (t *tx) list(index, key string) ([]domain.Reservation, error) {
	it, err := t.txn.Get(tableReservation, index, key)
	if err != nil {
		return nil, err
	}
	var out []domain.Reservation
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *raw.(*domain.Reservation))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out, nil
}

func (t *tx) ListCartReservations(_ context.Context, cartID string) ([]domain.Reservation, error) {
	return t.list("cart", cartID)
}

func (t *tx) ListOrderReservations(_ context.Context, orderID string) ([]domain.Reservation, error) {
	return t.list("order", orderID)
}

func (t *tx) ListExpiredCartReservations(_ context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	it, err := t.txn.Get(tableReservation, "id")
	if err != nil {
		return nil, err
	}
	var out []domain.Reservation
	for raw := it.Next(); raw != nil; raw = it.Next() {
		r := *raw.(*domain.Reservation)
		if r.HeldByCart() && r.Expired(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) InsertReservation(ctx context.Context, r domain.Reservation) error {
	if r.HeldByCart() == r.HeldByOrder() {
		return fmt.Errorf("reservation %s must be held by exactly one cart or order", r.ID)
	}
	if raw, err := t.first(tableReservation, "id", r.ID); err != nil {
		return err
	} else if raw != nil {
		return fmt.Errorf("reservation %s already exists", r.ID)
	}
	if r.HeldByCart() {
		if _, err := t.GetCartReservation(ctx, r.CartID, r.VariantID); err == nil {
			return fmt.Errorf("cart %s already holds variant %s", r.CartID, r.VariantID)
		}
	}
	return t.txn.Insert(tableReservation, &r)
}

func (t *tx) UpdateReservation(ctx context.Context, r domain.Reservation) error {
	if _, err := t.GetReservation(ctx, r.ID); err != nil {
		return err
	}
	if r.HeldByCart() == r.HeldByOrder() {
		return fmt.Errorf("reservation %s must be held by exactly one cart or order", r.ID)
	}
	return t.txn.Insert(tableReservation, &r)
}

func (t *tx) DeleteReservation(_ context.Context, id string) error {
	raw, err := t.first(tableReservation, "id", id)
	if err != nil {
		return err
	}
	if raw == nil {
		return domain.NotFound("reservation", id)
	}
	return t.txn.Delete(tableReservation, raw)
}

// ---- orders ----

func (t *tx) InsertOrder(_ context.Context, o domain.Order) error {
	if raw, err := t.first(tableOrder, "id", o.ID); err != nil {
		return err
	} else if raw != nil {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	return t.txn.Insert(tableOrder, copyOrder(o))
}

func (t *tx) GetOrder(_ context.Context, id string) (domain.Order, error) {
	raw, err := t.first(tableOrder, "id", id)
	if err != nil {
		return domain.Order{}, err
	}
	if raw == nil {
		return domain.Order{}, domain.NotFound("order", id)
	}
	return *copyOrder(*raw.(*domain.Order)), nil
}

func (t *tx) UpdateOrder(ctx context.Context, o domain.Order) error {
	cur, err := t.GetOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	// items are immutable once the order exists
	o.Items = cur.Items
	return t.txn.Insert(tableOrder, copyOrder(o))
}

func (t *tx) ListExpiredPendingOrders(_ context.Context, now time.Time, limit int) ([]string, error) {
	it, err := t.txn.Get(tableOrder, "status", string(domain.StatusPending))
	if err != nil {
		return nil, err
	}
	var due []*domain.Order
	for raw := it.Next(); raw != nil; raw = it.Next() {
		if o := raw.(*domain.Order); o.ReservedUntil.Before(now) {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ReservedUntil.Before(due[j].ReservedUntil) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]string, 0, len(due))
	for _, o := range due {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// memdb hands out the stored pointers; anything with slices is copied on the way in and out.

func copyVariant(v domain.Variant) *domain.Variant {
	v.Attributes = slices.Clone(v.Attributes)
	if v.PromoPriceCents != nil {
		p := *v.PromoPriceCents
		v.PromoPriceCents = &p
	}
	return &v
}

func copyOrder(o domain.Order) *domain.Order {
	items := make([]domain.OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.Attributes = slices.Clone(it.Attributes)
		items[i] = it
	}
	o.Items = items
	return &o
}
