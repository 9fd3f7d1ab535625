// Package storetest holds fixtures for tests that run against a store.Store.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/memstore"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

func NewMem(t testing.TB) *memstore.Store {
	t.Helper()
	s, err := memstore.New()
	require.NoError(t, err)
	return s
}

// Variant creates a variant priced priceCents with quantity units and nothing reserved.
func Variant(t testing.TB, s store.Store, id string, priceCents, quantity int) domain.Variant {
	t.Helper()
	v := domain.Variant{ID: id, ProductID: "p-" + id, SKU: "SKU-" + id, Name: "Variant " + id, PriceCents: priceCents}
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateVariant(ctx, v, quantity)
	}))
	return v
}

// Stock reads the ledger row of variantID.
func Stock(t testing.TB, s store.Store, variantID string) domain.Stock {
	t.Helper()
	var st domain.Stock
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		st, err = tx.GetStock(ctx, variantID)
		return err
	}))
	return st
}

// Counters is Stock as a {quantity, reservedQty} pair for compact assertions.
func Counters(t testing.TB, s store.Store, variantID string) [2]int {
	t.Helper()
	st := Stock(t, s, variantID)
	return [2]int{st.Quantity, st.ReservedQty}
}

// Adjust applies raw ledger deltas, e.g. to simulate a stock correction.
func Adjust(t testing.TB, s store.Store, variantID string, quantityDelta, reservedDelta int) {
	t.Helper()
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.AdjustStock(ctx, variantID, quantityDelta, reservedDelta)
	}))
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(at time.Time) *Clock { return &Clock{now: at} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
