// Package store defines the unit of work the engines run against. Implementations live in
// internal/postgres and internal/memstore.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
)

// Store opens transactions. fn runs inside one transaction: a nil return commits, any error
// rolls every write back. Reads made through tx that precede a write to the same row are
// serialized against other transactions writing that row.
// ErrUserHasCart is returned by CreateCart when the user already owns a cart. The
// transaction stays usable so the caller can read that cart instead.
var ErrUserHasCart = errors.New("user already has a cart")

type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Catalog
	Ledger
	Carts
	Reservations
	Orders
}

type Catalog interface {
	// CreateVariant stores v together with its stock record.
	CreateVariant(ctx context.Context, v domain.Variant, quantity int) error
	GetVariant(ctx context.Context, id string) (domain.Variant, error)
}

// Ledger is the stock counter surface. AdjustStock applies both deltas in one atomic
// update and does not clamp; callers check availability first.
type Ledger interface {
	// GetStock reads and locks the stock row for the rest of the transaction.
	GetStock(ctx context.Context, variantID string) (domain.Stock, error)
	AdjustStock(ctx context.Context, variantID string, quantityDelta, reservedDelta int) error
}

type Carts interface {
	CreateCart(ctx context.Context, c domain.Cart) error
	GetCart(ctx context.Context, id string) (domain.Cart, error)
	// LockCart is GetCart that also locks the cart row for the rest of the transaction.
	// Cart mutations take it before any stock row.
	LockCart(ctx context.Context, id string) (domain.Cart, error)
	FindCartByUser(ctx context.Context, userID string) (domain.Cart, error)
	TouchCart(ctx context.Context, id string, at time.Time) error
	DeleteCart(ctx context.Context, id string) error
}

type Reservations interface {
	// GetReservation reads and locks one reservation.
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	GetCartReservation(ctx context.Context, cartID, variantID string) (domain.Reservation, error)
	ListCartReservations(ctx context.Context, cartID string) ([]domain.Reservation, error)
	ListOrderReservations(ctx context.Context, orderID string) ([]domain.Reservation, error)
	// ListExpiredCartReservations returns cart-held reservations with ExpiresAt < now,
	// oldest first, at most limit rows (limit <= 0 means no limit).
	ListExpiredCartReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	InsertReservation(ctx context.Context, r domain.Reservation) error
	UpdateReservation(ctx context.Context, r domain.Reservation) error
	DeleteReservation(ctx context.Context, id string) error
}

type Orders interface {
	InsertOrder(ctx context.Context, o domain.Order) error
	// GetOrder reads and locks the order row, items included.
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	UpdateOrder(ctx context.Context, o domain.Order) error
	ListExpiredPendingOrders(ctx context.Context, now time.Time, limit int) ([]string, error)
}
