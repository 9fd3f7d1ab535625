package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/postgres"
	"github.com/ariefcatur/go-cart-reservations/internal/reservation"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
	"github.com/ariefcatur/go-cart-reservations/internal/storetest"
)

// testPool connects to POSTGRES_DSN and applies the schema, skipping when no database is
// reachable.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool
}

func TestStoreContract(t *testing.T) {
	pool := testPool(t)
	storetest.RunContract(t, func(t *testing.T) store.Store { return &postgres.Store{DB: pool} })
}

func TestMigrate_IsRepeatable(t *testing.T) {
	pool := testPool(t)
	assert.NoError(t, postgres.Migrate(context.Background(), pool))
}

func TestAddItem_ConcurrentShoppersNeverOversell(t *testing.T) {
	pool := testPool(t)
	s := &postgres.Store{DB: pool}
	svc := &reservation.Service{Store: s}
	ctx := context.Background()

	const stock, shoppers = 5, 20
	v := storetest.Variant(t, s, uuid.NewString(), 1000, stock)

	var (
		wg       sync.WaitGroup
		won      atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < shoppers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := svc.CreateOrGetCart(ctx, "")
			if !assert.NoError(t, err) {
				return
			}
			_, err = svc.AddItem(ctx, c.ID, v.ID, 1)
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, stock, won.Load())
	assert.EqualValues(t, shoppers-stock, rejected.Load())
	assert.Equal(t, [2]int{stock, stock}, storetest.Counters(t, s, v.ID))
}
