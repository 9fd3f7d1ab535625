package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
)

const reservationCols = `id, variant_id, quantity, cart_id, order_id, reserved_at, expires_at`

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var (
		r              domain.Reservation
		cartID, ordrID *string
	)
	if err := row.Scan(&r.ID, &r.VariantID, &r.Quantity, &cartID, &ordrID, &r.ReservedAt, &r.ExpiresAt); err != nil {
		return domain.Reservation{}, err
	}
	r.CartID, r.OrderID = deref(cartID), deref(ordrID)
	return r, nil
}

func (t *tx) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRow(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return domain.Reservation{}, notFound(err, "reservation", id)
	}
	return r, nil
}

func (t *tx) GetCartReservation(ctx context.Context, cartID, variantID string) (domain.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRow(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE cart_id=$1 AND variant_id=$2 FOR UPDATE`, cartID, variantID))
	if err != nil {
		return domain.Reservation{}, notFound(err, "cart item", cartID+"/"+variantID)
	}
	return r, nil
}

func (t *tx) queryReservations(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *tx) ListCartReservations(ctx context.Context, cartID string) ([]domain.Reservation, error) {
	return t.queryReservations(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE cart_id=$1 ORDER BY variant_id`, cartID)
}

func (t *tx) ListOrderReservations(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return t.queryReservations(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE order_id=$1 ORDER BY variant_id`, orderID)
}

func (t *tx) ListExpiredCartReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	return t.queryReservations(ctx, `
		SELECT `+reservationCols+` FROM reservations
		WHERE cart_id IS NOT NULL AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, now, limitArg(limit))
}

func (t *tx) InsertReservation(ctx context.Context, r domain.Reservation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reservations(`+reservationCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.ID, r.VariantID, r.Quantity, nullable(r.CartID), nullable(r.OrderID), r.ReservedAt, r.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (t *tx) UpdateReservation(ctx context.Context, r domain.Reservation) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE reservations
		SET quantity=$2, cart_id=$3, order_id=$4, reserved_at=$5, expires_at=$6
		WHERE id=$1`,
		r.ID, r.Quantity, nullable(r.CartID), nullable(r.OrderID), r.ReservedAt, r.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return domain.NotFound("reservation", r.ID)
	}
	return nil
}

func (t *tx) DeleteReservation(ctx context.Context, id string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM reservations WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return domain.NotFound("reservation", id)
	}
	return nil
}
