package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
)

func (t *tx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, payment_method, payment_proof_url, tracking_number,
			ship_full_name, ship_email, ship_phone, ship_address, ship_city, ship_postal_code,
			subtotal_cents, discount_cents, shipping_cents, total_cents, reserved_until, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		o.ID, nullable(o.UserID), o.Status, o.PaymentMethod, o.PaymentProofURL, o.TrackingNumber,
		o.Shipping.FullName, o.Shipping.Email, o.Shipping.Phone, o.Shipping.Address, o.Shipping.City, o.Shipping.PostalCode,
		o.SubtotalCents, o.DiscountCents, o.ShippingCents, o.TotalCents, o.ReservedUntil, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		attrs := it.Attributes
		if attrs == nil {
			attrs = []string{}
		}
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, variant_id, sku, name, image_url, attributes, unit_price_cents, quantity)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			it.ID, o.ID, it.VariantID, it.SKU, it.Name, it.ImageURL, attrs, it.UnitPriceCents, it.Quantity,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *tx) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	var (
		o   domain.Order
		uid *string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, status, payment_method, payment_proof_url, tracking_number,
			ship_full_name, ship_email, ship_phone, ship_address, ship_city, ship_postal_code,
			subtotal_cents, discount_cents, shipping_cents, total_cents, reserved_until, created_at, updated_at
		FROM orders WHERE id=$1 FOR UPDATE`, id,
	).Scan(&o.ID, &uid, &o.Status, &o.PaymentMethod, &o.PaymentProofURL, &o.TrackingNumber,
		&o.Shipping.FullName, &o.Shipping.Email, &o.Shipping.Phone, &o.Shipping.Address, &o.Shipping.City, &o.Shipping.PostalCode,
		&o.SubtotalCents, &o.DiscountCents, &o.ShippingCents, &o.TotalCents, &o.ReservedUntil, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, notFound(err, "order", id)
	}
	o.UserID = deref(uid)

	rows, err := t.tx.Query(ctx, `
		SELECT id, order_id, variant_id, sku, name, image_url, attributes, unit_price_cents, quantity
		FROM order_items WHERE order_id=$1 ORDER BY variant_id`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.VariantID, &it.SKU, &it.Name, &it.ImageURL,
			&it.Attributes, &it.UnitPriceCents, &it.Quantity); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// UpdateOrder writes the mutable columns; items and totals are fixed at checkout.
func (t *tx) UpdateOrder(ctx context.Context, o domain.Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$2, payment_proof_url=$3, tracking_number=$4, updated_at=$5
		WHERE id=$1`, o.ID, o.Status, o.PaymentProofURL, o.TrackingNumber, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return domain.NotFound("order", o.ID)
	}
	return nil
}

func (t *tx) ListExpiredPendingOrders(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id FROM orders
		WHERE status='PENDING' AND reserved_until < $1
		ORDER BY reserved_until
		LIMIT $2`, now, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query expired orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
