package sweeper_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-cart-reservations/internal/checkout"
	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/events"
	"github.com/ariefcatur/go-cart-reservations/internal/metrics"
	"github.com/ariefcatur/go-cart-reservations/internal/reservation"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
	"github.com/ariefcatur/go-cart-reservations/internal/storetest"
	"github.com/ariefcatur/go-cart-reservations/internal/sweeper"
)

var t0 = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

const ttl = 15 * time.Minute

type fixture struct {
	store store.Store
	clock *storetest.Clock
	carts *reservation.Service
	sw    *sweeper.Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := storetest.NewMem(t)
	clock := storetest.NewClock(t0)
	return &fixture{
		store: s,
		clock: clock,
		carts: &reservation.Service{Store: s, TTL: ttl, Now: clock.Now},
		sw:    &sweeper.Sweeper{Store: s, Now: clock.Now},
	}
}

func (f *fixture) add(t *testing.T, variantID string, qty int) domain.Cart {
	t.Helper()
	ctx := context.Background()
	c, err := f.carts.CreateOrGetCart(ctx, "")
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c.ID, variantID, qty)
	require.NoError(t, err)
	return c
}

func TestRunOnce_ReleasesExpiredLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 1000, 8)
	c := f.add(t, "v1", 3)
	require.Equal(t, [2]int{8, 3}, storetest.Counters(t, f.store, "v1"))

	f.clock.Advance(ttl + time.Second)
	rep, err := f.sw.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, sweeper.Report{ItemsReleased: 1, UnitsReleased: 3}, rep)
	assert.Equal(t, [2]int{8, 0}, storetest.Counters(t, f.store, "v1"))
	got, err := f.carts.GetCart(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestRunOnce_RecordsMetrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	f.sw.Metrics = metrics.New(reg)
	storetest.Variant(t, f.store, "v1", 1000, 8)
	f.add(t, "v1", 3)

	f.clock.Advance(ttl + time.Second)
	_, err := f.sw.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.sw.Metrics.SweepRuns.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.sw.Metrics.SweptUnits))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var observed uint64
	for _, mf := range mfs {
		if mf.GetName() == "shop_sweep_duration_seconds" {
			observed = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(1), observed)
}

func TestRunOnce_SecondSweepIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 1000, 8)
	f.add(t, "v1", 2)
	f.add(t, "v1", 1)

	f.clock.Advance(ttl + time.Minute)
	rep, err := f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.ItemsReleased)
	assert.Equal(t, 3, rep.UnitsReleased)

	rep, err = f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, sweeper.Report{}, rep)
}

func TestRunOnce_SkipsLinesNotYetExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 1000, 8)
	f.add(t, "v1", 2)

	f.clock.Advance(ttl) // expiresAt == now is not expired
	rep, err := f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.ItemsReleased)
	assert.Equal(t, [2]int{8, 2}, storetest.Counters(t, f.store, "v1"))
}

func TestRunOnce_ExpiryMatchesExplicitRemove(t *testing.T) {
	swept, removed := newFixture(t), newFixture(t)
	ctx := context.Background()
	for _, f := range []*fixture{swept, removed} {
		storetest.Variant(t, f.store, "v1", 1000, 6)
		storetest.Adjust(t, f.store, "v1", 0, 1)
	}

	swept.add(t, "v1", 4)
	swept.clock.Advance(time.Hour)
	_, err := swept.sw.RunOnce(ctx)
	require.NoError(t, err)

	c := removed.add(t, "v1", 4)
	require.NoError(t, removed.carts.RemoveItem(ctx, c.ID, "v1"))

	assert.Equal(t, storetest.Counters(t, removed.store, "v1"), storetest.Counters(t, swept.store, "v1"))
	assert.Equal(t, [2]int{6, 1}, storetest.Counters(t, swept.store, "v1"))
}

func TestRunOnce_CheckedOutLinesAreNotCartHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 1000, 5)
	c := f.add(t, "v1", 2)
	orders := &checkout.Service{Store: f.store, Now: f.clock.Now}
	_, err := orders.Checkout(ctx, checkout.Request{
		CartID: c.ID,
		Shipping: domain.ShippingInfo{
			FullName: "A", Email: "a@example.com", Phone: "1", Address: "St", City: "C", PostalCode: "1",
		},
		PaymentMethod: domain.PaymentCard,
	})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	rep, err := f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.ItemsReleased)
	assert.Equal(t, [2]int{5, 2}, storetest.Counters(t, f.store, "v1"))

	// a day later the unpaid order itself lapses
	f.sw.Orders = orders
	f.clock.Advance(checkout.DefaultOrderHold)
	rep, err = f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, sweeper.Report{OrdersExpired: 1}, rep)
	assert.Equal(t, [2]int{5, 0}, storetest.Counters(t, f.store, "v1"))
}

// failingTx breaks stock reads for one variant.
type failingTx struct {
	store.Tx
	variantID string
}

var errDisk = errors.New("disk unavailable")

func (t failingTx) GetStock(ctx context.Context, id string) (domain.Stock, error) {
	if id == t.variantID {
		return domain.Stock{}, errDisk
	}
	return t.Tx.GetStock(ctx, id)
}

type failingStore struct {
	store.Store
	variantID string
}

func (s failingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, failingTx{Tx: tx, variantID: s.variantID})
	})
}

func TestRunOnce_OneFailureDoesNotStopTheBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "good", 1000, 5)
	storetest.Variant(t, f.store, "bad", 1000, 5)
	f.add(t, "bad", 1)
	f.add(t, "good", 2)

	f.clock.Advance(time.Hour)
	f.sw.Store = failingStore{Store: f.store, variantID: "bad"}
	rep, err := f.sw.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, sweeper.Report{ItemsReleased: 1, UnitsReleased: 2, Failed: 1}, rep)
	assert.Equal(t, [2]int{5, 0}, storetest.Counters(t, f.store, "good"))
	assert.Equal(t, [2]int{5, 1}, storetest.Counters(t, f.store, "bad"))

	// once the fault clears the leftover goes too
	f.sw.Store = f.store
	rep, err = f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ItemsReleased)
}

// gateStore parks the first transaction until release is closed.
type gateStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gateStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.Store.WithinTx(ctx, fn)
}

func TestRunOnce_RejectsOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 1000, 5)
	f.add(t, "v1", 2)
	f.clock.Advance(time.Hour)

	gate := &gateStore{Store: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	f.sw.Store = gate

	done := make(chan sweeper.Report)
	go func() {
		rep, err := f.sw.RunOnce(ctx)
		assert.NoError(t, err)
		done <- rep
	}()
	<-gate.entered

	_, err := f.sw.RunOnce(ctx)
	assert.ErrorIs(t, err, sweeper.ErrSweepInProgress)

	close(gate.release)
	rep := <-done
	assert.Equal(t, 1, rep.ItemsReleased)
	assert.Equal(t, [2]int{5, 0}, storetest.Counters(t, f.store, "v1"))
}

type fakeLocker struct {
	held     bool
	err      error
	unlocked int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	if l.err != nil || l.held {
		return func() {}, false, l.err
	}
	l.held = true
	return func() { l.held = false; l.unlocked++ }, true, nil
}

func TestRunOnce_DistributedLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 1000, 5)
	f.add(t, "v1", 2)
	f.clock.Advance(time.Hour)

	lock := &fakeLocker{held: true}
	f.sw.Locker = lock
	_, err := f.sw.RunOnce(ctx)
	require.ErrorIs(t, err, sweeper.ErrSweepInProgress)
	assert.Equal(t, [2]int{5, 2}, storetest.Counters(t, f.store, "v1"))

	lock.held = false
	rep, err := f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ItemsReleased)
	assert.Equal(t, 1, lock.unlocked)
	assert.False(t, lock.held)

	// lock backend down: sweep still runs
	f.add(t, "v1", 1)
	f.clock.Advance(time.Hour)
	lock.err = errors.New("redis: connection refused")
	rep, err = f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ItemsReleased)
}

type recorder struct {
	mu   sync.Mutex
	sent []events.Envelope
}

func (r *recorder) PublishEvent(_ context.Context, _ string, env events.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, env)
	return nil
}

func TestRunOnce_PublishesReleasedLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 1000, 5)
	c := f.add(t, "v1", 2)
	pub := &recorder{}
	f.sw.Publisher = pub

	_, err := f.sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, pub.sent, "nothing released, nothing published")

	f.clock.Advance(time.Hour)
	_, err = f.sw.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, pub.sent, 1)
	p, err := events.Decode[events.ReservationsReleasedPayload](pub.sent[0])
	require.NoError(t, err)
	assert.Equal(t, []events.ReleasedLine{{CartID: c.ID, VariantID: "v1", Qty: 2}}, p.Lines)
}

func TestRun_SweepsOnTickAndStops(t *testing.T) {
	f := newFixture(t)
	storetest.Variant(t, f.store, "v1", 1000, 5)
	f.add(t, "v1", 2)
	f.clock.Advance(time.Hour)
	f.sw.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error)
	go func() { stopped <- f.sw.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return storetest.Counters(t, f.store, "v1") == [2]int{5, 0}
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
