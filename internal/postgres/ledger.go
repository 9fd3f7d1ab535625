package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
)

func (t *tx) CreateVariant(ctx context.Context, v domain.Variant, quantity int) error {
	attrs := v.Attributes
	if attrs == nil {
		attrs = []string{}
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO variants(id, product_id, sku, name, price_cents, promo_price_cents, image_url, attributes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		v.ID, v.ProductID, v.SKU, v.Name, v.PriceCents, v.PromoPriceCents, v.ImageURL, attrs,
	); err != nil {
		return fmt.Errorf("insert variant: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `INSERT INTO stock(variant_id, quantity, reserved_qty) VALUES ($1,$2,0)`, v.ID, quantity); err != nil {
		return fmt.Errorf("insert stock: %w", err)
	}
	return nil
}

func (t *tx) GetVariant(ctx context.Context, id string) (domain.Variant, error) {
	var v domain.Variant
	err := t.tx.QueryRow(ctx, `
		SELECT id, product_id, sku, name, price_cents, promo_price_cents, image_url, attributes
		FROM variants WHERE id=$1`, id,
	).Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.PriceCents, &v.PromoPriceCents, &v.ImageURL, &v.Attributes)
	if err != nil {
		return domain.Variant{}, notFound(err, "variant", id)
	}
	return v, nil
}

func (t *tx) GetStock(ctx context.Context, variantID string) (domain.Stock, error) {
	var s domain.Stock
	err := t.tx.QueryRow(ctx, `
		SELECT variant_id, quantity, reserved_qty, updated_at
		FROM stock WHERE variant_id=$1 FOR UPDATE`, variantID,
	).Scan(&s.VariantID, &s.Quantity, &s.ReservedQty, &s.UpdatedAt)
	if err != nil {
		return domain.Stock{}, notFound(err, "stock", variantID)
	}
	return s, nil
}

func (t *tx) AdjustStock(ctx context.Context, variantID string, quantityDelta, reservedDelta int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE stock
		SET quantity = quantity + $2, reserved_qty = reserved_qty + $3, updated_at = now()
		WHERE variant_id = $1`, variantID, quantityDelta, reservedDelta)
	if err != nil {
		return fmt.Errorf("update stock %s: %w", variantID, err)
	}
	if ct.RowsAffected() != 1 {
		return domain.NotFound("stock", variantID)
	}
	return nil
}
