// Package ledger names the four movements a stock row can make. Each is one atomic update
// inside the caller's transaction; none of them checks availability.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

// Reserve moves n units from available to reserved.
func Reserve(ctx context.Context, l store.Ledger, variantID string, n int) error {
	return adjust(ctx, l, variantID, 0, n)
}

// Release gives n reserved units back to available.
func Release(ctx context.Context, l store.Ledger, variantID string, n int) error {
	return adjust(ctx, l, variantID, 0, -n)
}

// Consume turns n reserved units into a sale.
func Consume(ctx context.Context, l store.Ledger, variantID string, n int) error {
	return adjust(ctx, l, variantID, -n, -n)
}

// Restock returns n sold units to the shelf.
func Restock(ctx context.Context, l store.Ledger, variantID string, n int) error {
	return adjust(ctx, l, variantID, n, 0)
}

func adjust(ctx context.Context, l store.Ledger, variantID string, dq, dr int) error {
	if dq == 0 && dr == 0 {
		return nil
	}
	if err := l.AdjustStock(ctx, variantID, dq, dr); err != nil {
		return fmt.Errorf("ledger %s (qty %+d, reserved %+d): %w", variantID, dq, dr, err)
	}
	return nil
}

// Lookup loads the variant and its locked stock row, distinguishing a missing variant from
// a variant that was never given a stock record.
func Lookup(ctx context.Context, tx store.Tx, variantID string) (domain.Variant, domain.Stock, error) {
	v, err := tx.GetVariant(ctx, variantID)
	if err != nil {
		return domain.Variant{}, domain.Stock{}, err
	}
	s, err := tx.GetStock(ctx, variantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Variant{}, domain.Stock{}, fmt.Errorf("variant %s: %w", variantID, domain.ErrNoStockConfigured)
		}
		return domain.Variant{}, domain.Stock{}, err
	}
	return v, s, nil
}
