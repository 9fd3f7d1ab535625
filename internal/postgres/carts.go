package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

// CreateCart skips the insert when the user already owns a cart, so a lost race for the
// first cart leaves the transaction usable.
func (t *tx) CreateCart(ctx context.Context, c domain.Cart) error {
	ct, err := t.tx.Exec(ctx, `
		INSERT INTO carts(id, user_id, created_at, updated_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) WHERE user_id IS NOT NULL DO NOTHING`,
		c.ID, nullable(c.UserID), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("cart for user %s: %w", c.UserID, store.ErrUserHasCart)
	}
	return nil
}

func (t *tx) GetCart(ctx context.Context, id string) (domain.Cart, error) {
	return t.scanCart(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE id=$1`, "cart", id)
}

func (t *tx) LockCart(ctx context.Context, id string) (domain.Cart, error) {
	return t.scanCart(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE id=$1 FOR UPDATE`, "cart", id)
}

func (t *tx) FindCartByUser(ctx context.Context, userID string) (domain.Cart, error) {
	return t.scanCart(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id=$1`, "cart for user", userID)
}

func (t *tx) scanCart(ctx context.Context, query, entity, key string) (domain.Cart, error) {
	var (
		c   domain.Cart
		uid *string
	)
	if err := t.tx.QueryRow(ctx, query, key).Scan(&c.ID, &uid, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Cart{}, notFound(err, entity, key)
	}
	c.UserID = deref(uid)

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

func (t *tx) TouchCart(ctx context.Context, id string, at time.Time) error {
	ct, err := t.tx.Exec(ctx, `UPDATE carts SET updated_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return domain.NotFound("cart", id)
	}
	return nil
}

// DeleteCart fails on the reservations FK if the cart still holds lines.
func (t *tx) DeleteCart(ctx context.Context, id string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM carts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return domain.NotFound("cart", id)
	}
	return nil
}
