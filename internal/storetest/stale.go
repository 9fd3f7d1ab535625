package storetest

import (
	"context"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

// StaleCart wraps s so that reading the snapshot's cart, locked or not, returns snapshot
// instead of the committed state. It replays a transaction that listed the cart's lines
// just before a concurrent one changed them.
func StaleCart(s store.Store, snapshot domain.Cart) store.Store {
	return &staleStore{Store: s, snapshot: snapshot}
}

type staleStore struct {
	store.Store
	snapshot domain.Cart
}

func (s *staleStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &staleTx{Tx: tx, snapshot: s.snapshot})
	})
}

type staleTx struct {
	store.Tx
	snapshot domain.Cart
}

func (t *staleTx) GetCart(ctx context.Context, id string) (domain.Cart, error) {
	if id == t.snapshot.ID {
		return t.snapshot, nil
	}
	return t.Tx.GetCart(ctx, id)
}

func (t *staleTx) LockCart(ctx context.Context, id string) (domain.Cart, error) {
	if id == t.snapshot.ID {
		return t.snapshot, nil
	}
	return t.Tx.LockCart(ctx, id)
}
