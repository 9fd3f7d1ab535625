package reservation

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/ledger"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

// CartHold re-reads reservation id under lock and reports whether cartID still holds it.
// A reservation that was swept, checked out or moved since the cart was read is not held.
func CartHold(ctx context.Context, tx store.Tx, id, cartID string) (domain.Reservation, bool, error) {
	r, err := tx.GetReservation(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Reservation{}, false, nil
	}
	if err != nil {
		return domain.Reservation{}, false, err
	}
	return r, r.CartID == cartID, nil
}

// Release returns r's units to the available pool and deletes r, whether a cart line or an
// order holds it. Callers lock the variant's stock row first.
func Release(ctx context.Context, tx store.Tx, r domain.Reservation) error {
	if err := ledger.Release(ctx, tx, r.VariantID, r.Quantity); err != nil {
		return err
	}
	return tx.DeleteReservation(ctx, r.ID)
}

// Consume turns r into a sale: both counters drop by r.Quantity and r is deleted.
// Fails with *domain.InsufficientStockError when the physical quantity no longer covers r.
func Consume(ctx context.Context, tx store.Tx, r domain.Reservation) error {
	stock, err := tx.GetStock(ctx, r.VariantID)
	if err != nil {
		return err
	}
	if stock.Quantity < r.Quantity {
		return &domain.InsufficientStockError{
			VariantID: r.VariantID,
			Available: stock.Quantity,
			Requested: r.Quantity,
		}
	}
	if err := ledger.Consume(ctx, tx, r.VariantID, r.Quantity); err != nil {
		return err
	}
	return tx.DeleteReservation(ctx, r.ID)
}
