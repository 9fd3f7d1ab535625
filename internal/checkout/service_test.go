package checkout_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-cart-reservations/internal/checkout"
	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/events"
	"github.com/ariefcatur/go-cart-reservations/internal/memstore"
	"github.com/ariefcatur/go-cart-reservations/internal/reservation"
	"github.com/ariefcatur/go-cart-reservations/internal/storetest"
)

var t0 = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

var shipTo = domain.ShippingInfo{
	FullName: "Ana Putri", Email: "ana@example.com", Phone: "0812",
	Address: "Jl. Melati 5", City: "Bandung", PostalCode: "40115",
}

type recorder struct {
	mu   sync.Mutex
	sent []events.Envelope
	tops []string
}

func (r *recorder) PublishEvent(_ context.Context, topic string, env events.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, env)
	r.tops = append(r.tops, topic)
	return nil
}

func (r *recorder) last() (string, events.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tops[len(r.tops)-1], r.sent[len(r.sent)-1]
}

type fixture struct {
	store  *memstore.Store
	clock  *storetest.Clock
	carts  *reservation.Service
	orders *checkout.Service
	pub    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := storetest.NewMem(t)
	clock := storetest.NewClock(t0)
	pub := &recorder{}
	return &fixture{
		store: s,
		clock: clock,
		pub:   pub,
		carts: &reservation.Service{Store: s, Now: clock.Now},
		orders: &checkout.Service{
			Store:                   s,
			Shipping:                checkout.FlatRate{RateCents: 1500},
			Publisher:               pub,
			ServiceName:             "test",
			TransferDiscountPercent: 10,
			Now:                     clock.Now,
		},
	}
}

// cartWith creates a cart for userID holding qty of each variant.
func (f *fixture) cartWith(t *testing.T, userID string, lines map[string]int) domain.Cart {
	t.Helper()
	ctx := context.Background()
	c, err := f.carts.CreateOrGetCart(ctx, userID)
	require.NoError(t, err)
	for v, qty := range lines {
		_, err := f.carts.AddItem(ctx, c.ID, v, qty)
		require.NoError(t, err)
	}
	return c
}

func (f *fixture) checkout(t *testing.T, c domain.Cart, pm domain.PaymentMethod) domain.Order {
	t.Helper()
	o, err := f.orders.Checkout(context.Background(), checkout.Request{
		CartID: c.ID, UserID: c.UserID, Shipping: shipTo, PaymentMethod: pm,
	})
	require.NoError(t, err)
	return o
}

func TestCheckout_KeepsReservationUnderOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 5)
	c := f.cartWith(t, "", map[string]int{"v1": 2})
	require.Equal(t, [2]int{5, 2}, storetest.Counters(t, f.store, "v1"))

	o := f.checkout(t, c, domain.PaymentCard)

	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, t0.Add(checkout.DefaultOrderHold), o.ReservedUntil)
	assert.Equal(t, [2]int{5, 2}, storetest.Counters(t, f.store, "v1"), "checkout does not touch the ledger")

	got, err := f.carts.GetCart(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)

	topic, env := f.pub.last()
	assert.Equal(t, events.TopicOrderCreated, topic)
	assert.Equal(t, events.EventOrderCreated, env.EventType)
	p, err := events.Decode[events.OrderCreatedPayload](env)
	require.NoError(t, err)
	assert.Equal(t, o.ID, p.OrderID)
	assert.Equal(t, shipTo.Email, p.Email)
}

func TestCheckout_PricesTransferWithDiscountAndShipping(t *testing.T) {
	f := newFixture(t)
	storetest.Variant(t, f.store, "v1", 2000, 5)
	c := f.cartWith(t, "", map[string]int{"v1": 2})

	o := f.checkout(t, c, domain.PaymentTransfer)

	require.Len(t, o.Items, 1)
	assert.Equal(t, 1800, o.Items[0].UnitPriceCents)
	assert.Equal(t, "SKU-v1", o.Items[0].SKU)
	assert.Equal(t, 4000, o.SubtotalCents)
	assert.Equal(t, 400, o.DiscountCents)
	assert.Equal(t, 1500, o.ShippingCents)
	assert.Equal(t, 5100, o.TotalCents)
}

func TestCheckout_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 5)
	full := f.cartWith(t, "user-1", map[string]int{"v1": 1})
	empty := f.cartWith(t, "", nil)

	req := func(cartID, userID string, ship domain.ShippingInfo, pm domain.PaymentMethod) error {
		_, err := f.orders.Checkout(ctx, checkout.Request{CartID: cartID, UserID: userID, Shipping: ship, PaymentMethod: pm})
		return err
	}

	noCity := shipTo
	noCity.City = ""
	assert.ErrorIs(t, req(full.ID, "user-1", noCity, domain.PaymentCard), domain.ErrValidation)
	assert.ErrorIs(t, req(full.ID, "user-1", shipTo, "CASH"), domain.ErrValidation)
	assert.ErrorIs(t, req(empty.ID, "", shipTo, domain.PaymentCard), domain.ErrEmptyCart)
	assert.ErrorIs(t, req("missing", "", shipTo, domain.PaymentCard), domain.ErrNotFound)
	assert.ErrorIs(t, req(full.ID, "user-2", shipTo, domain.PaymentCard), domain.ErrForbidden)

	assert.Equal(t, [2]int{5, 1}, storetest.Counters(t, f.store, "v1"))
	got, err := f.carts.GetCart(ctx, full.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
}

func TestCheckout_StockShrankBelowCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 5)
	c := f.cartWith(t, "", map[string]int{"v1": 3})
	storetest.Adjust(t, f.store, "v1", -3, 0) // damaged goods written off

	_, err := f.orders.Checkout(ctx, checkout.Request{CartID: c.ID, Shipping: shipTo, PaymentMethod: domain.PaymentCard})
	var short *domain.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 2, short.Available)
	assert.Equal(t, 3, short.Requested)
}

func TestTransition_PaidConsumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 5)
	o := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 2}), domain.PaymentCard)

	paid, err := f.orders.Transition(ctx, o.ID, domain.StatusPaid, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	assert.Equal(t, [2]int{3, 0}, storetest.Counters(t, f.store, "v1"))

	topic, env := f.pub.last()
	assert.Equal(t, events.TopicOrderStatusChanged, topic)
	p, err := events.Decode[events.OrderStatusChangedPayload](env)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", p.From)
	assert.Equal(t, "PAID", p.To)
}

func TestTransition_PendingCancelReleases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 5)
	o := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 2}), domain.PaymentCard)

	_, err := f.orders.Transition(ctx, o.ID, domain.StatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, [2]int{5, 0}, storetest.Counters(t, f.store, "v1"))
}

func TestTransition_PaidIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 5)
	storetest.Variant(t, f.store, "v2", 1000, 5)
	o := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 2, "v2": 2}), domain.PaymentCard)
	storetest.Adjust(t, f.store, "v2", -4, 0) // only one unit of v2 left on the shelf

	_, err := f.orders.Transition(ctx, o.ID, domain.StatusPaid, "")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	assert.Equal(t, [2]int{5, 2}, storetest.Counters(t, f.store, "v1"), "v1 consumption rolled back")
	assert.Equal(t, [2]int{1, 2}, storetest.Counters(t, f.store, "v2"))
	got, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestTransition_ShipThenCancelRestocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 5)
	o := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 2}), domain.PaymentCard)
	_, err := f.orders.Transition(ctx, o.ID, domain.StatusPaid, "")
	require.NoError(t, err)

	_, err = f.orders.Transition(ctx, o.ID, domain.StatusShipped, "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	shipped, err := f.orders.Transition(ctx, o.ID, domain.StatusShipped, "JNE-001")
	require.NoError(t, err)
	assert.Equal(t, "JNE-001", shipped.TrackingNumber)
	assert.Equal(t, [2]int{3, 0}, storetest.Counters(t, f.store, "v1"))

	_, err = f.orders.Transition(ctx, o.ID, domain.StatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, [2]int{5, 0}, storetest.Counters(t, f.store, "v1"))
}

func TestTransition_UnmodeledPairs(t *testing.T) {
	ctx := context.Background()

	t.Run("lenient overwrites without ledger effect", func(t *testing.T) {
		f := newFixture(t)
		storetest.Variant(t, f.store, "v1", 2000, 5)
		o := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 2}), domain.PaymentCard)

		same, err := f.orders.Transition(ctx, o.ID, domain.StatusPending, "")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, same.Status)

		done, err := f.orders.Transition(ctx, o.ID, domain.StatusCompleted, "")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, done.Status)
		assert.Equal(t, [2]int{5, 2}, storetest.Counters(t, f.store, "v1"))
	})

	t.Run("strict rejects", func(t *testing.T) {
		f := newFixture(t)
		f.orders.StrictTransitions = true
		storetest.Variant(t, f.store, "v1", 2000, 5)
		o := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 2}), domain.PaymentCard)

		_, err := f.orders.Transition(ctx, o.ID, domain.StatusCompleted, "")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		_, err = f.orders.Transition(ctx, o.ID, domain.StatusPending, "")
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		_, err = f.orders.Transition(ctx, o.ID, domain.StatusPaid, "")
		require.NoError(t, err)
		_, err = f.orders.Transition(ctx, o.ID, domain.StatusPending, "")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.Equal(t, [2]int{3, 0}, storetest.Counters(t, f.store, "v1"))
	})
}

func TestTransition_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.Transition(ctx, "any", "LOST", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.orders.Transition(ctx, "missing", domain.StatusPaid, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUploadPaymentProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 5)
	transfer := f.checkout(t, f.cartWith(t, "user-1", map[string]int{"v1": 1}), domain.PaymentTransfer)
	card := f.checkout(t, f.cartWith(t, "user-1", map[string]int{"v1": 1}), domain.PaymentCard)
	guest := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 1}), domain.PaymentTransfer)

	_, err := f.orders.UploadPaymentProof(ctx, transfer.ID, "user-1", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.orders.UploadPaymentProof(ctx, transfer.ID, "user-2", "https://cdn/p.jpg")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.orders.UploadPaymentProof(ctx, guest.ID, "", "https://cdn/p.jpg")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.orders.UploadPaymentProof(ctx, card.ID, "user-1", "https://cdn/p.jpg")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	got, err := f.orders.UploadPaymentProof(ctx, transfer.ID, "user-1", "https://cdn/p.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/p.jpg", got.PaymentProofURL)

	_, err = f.orders.Transition(ctx, transfer.ID, domain.StatusPaid, "")
	require.NoError(t, err)
	_, err = f.orders.UploadPaymentProof(ctx, transfer.ID, "user-1", "https://cdn/p2.jpg")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestExpirePendingOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 10)
	stale := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 2}), domain.PaymentTransfer)
	paid := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 3}), domain.PaymentCard)
	_, err := f.orders.Transition(ctx, paid.ID, domain.StatusPaid, "")
	require.NoError(t, err)

	f.clock.Advance(12 * time.Hour)
	fresh := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 1}), domain.PaymentTransfer)
	require.Equal(t, [2]int{7, 3}, storetest.Counters(t, f.store, "v1"))

	n, err := f.orders.ExpirePendingOrders(ctx, t0.Add(checkout.DefaultOrderHold), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "deadline not passed yet")

	f.clock.Advance(13 * time.Hour)
	n, err = f.orders.ExpirePendingOrders(ctx, f.clock.Now(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, [2]int{7, 1}, storetest.Counters(t, f.store, "v1"))

	got, err := f.orders.GetOrder(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	got, err = f.orders.GetOrder(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)

	_, env := f.pub.last()
	p, err := events.Decode[events.OrderStatusChangedPayload](env)
	require.NoError(t, err)
	assert.Equal(t, "RESERVATION_EXPIRED", p.Reason)

	n, err = f.orders.ExpirePendingOrders(ctx, f.clock.Now(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCheckout_StaleCartReadFindsNothingLeft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 5)
	c := f.cartWith(t, "", map[string]int{"v1": 2})
	before, err := f.carts.GetCart(ctx, c.ID)
	require.NoError(t, err)

	first := f.checkout(t, c, domain.PaymentCard)

	late := *f.orders
	late.Store = storetest.StaleCart(f.store, before)
	_, err = late.Checkout(ctx, checkout.Request{CartID: c.ID, Shipping: shipTo, PaymentMethod: domain.PaymentCard})
	require.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = f.orders.Transition(ctx, first.ID, domain.StatusPaid, "")
	require.NoError(t, err, "the first order keeps its reservation")
	assert.Equal(t, [2]int{3, 0}, storetest.Counters(t, f.store, "v1"))
}

func TestCheckout_SkipsLinesRemovedAfterListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 5)
	storetest.Variant(t, f.store, "v2", 1000, 5)
	c := f.cartWith(t, "", map[string]int{"v1": 1, "v2": 2})
	before, err := f.carts.GetCart(ctx, c.ID)
	require.NoError(t, err)
	require.NoError(t, f.carts.RemoveItem(ctx, c.ID, "v1"))

	late := *f.orders
	late.Store = storetest.StaleCart(f.store, before)
	o, err := late.Checkout(ctx, checkout.Request{CartID: c.ID, Shipping: shipTo, PaymentMethod: domain.PaymentCard})
	require.NoError(t, err)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "v2", o.Items[0].VariantID)
	assert.Equal(t, 2000, o.SubtotalCents)
	assert.Equal(t, [2]int{5, 0}, storetest.Counters(t, f.store, "v1"))
	assert.Equal(t, [2]int{5, 2}, storetest.Counters(t, f.store, "v2"))
}

type statuses struct {
	mu sync.Mutex
	m  map[string]string
}

func (s *statuses) Set(_ context.Context, orderID, status string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[orderID] = status
	return nil
}

func (s *statuses) get(orderID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[orderID]
}

func TestStatusChangesReachTheRecorder(t *testing.T) {
	f := newFixture(t)
	rec := &statuses{m: map[string]string{}}
	f.orders.Statuses = rec
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 5)

	paid := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 1}), domain.PaymentCard)
	assert.Equal(t, "PENDING", rec.get(paid.ID))
	_, err := f.orders.Transition(ctx, paid.ID, domain.StatusPaid, "")
	require.NoError(t, err)
	assert.Equal(t, "PAID", rec.get(paid.ID))

	expiring := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 1}), domain.PaymentTransfer)
	f.clock.Advance(checkout.DefaultOrderHold + time.Minute)
	n, err := f.orders.ExpirePendingOrders(ctx, f.clock.Now(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, "CANCELLED", rec.get(expiring.ID))
}

func TestTransition_LenientReopenRestocksUnsoldUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.Variant(t, f.store, "v1", 2000, 5)
	o := f.checkout(t, f.cartWith(t, "", map[string]int{"v1": 2}), domain.PaymentCard)

	_, err := f.orders.Transition(ctx, o.ID, domain.StatusCancelled, "")
	require.NoError(t, err)
	require.Equal(t, [2]int{5, 0}, storetest.Counters(t, f.store, "v1"))

	// CANCELLED -> PAID is outside the graph: a bare overwrite that consumes nothing
	_, err = f.orders.Transition(ctx, o.ID, domain.StatusPaid, "")
	require.NoError(t, err)
	assert.Equal(t, [2]int{5, 0}, storetest.Counters(t, f.store, "v1"))

	// and PAID -> CANCELLED then restocks units that were never sold
	_, err = f.orders.Transition(ctx, o.ID, domain.StatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, [2]int{7, 0}, storetest.Counters(t, f.store, "v1"))

	strict := newFixture(t)
	strict.orders.StrictTransitions = true
	storetest.Variant(t, strict.store, "v1", 2000, 5)
	so := strict.checkout(t, strict.cartWith(t, "", map[string]int{"v1": 2}), domain.PaymentCard)
	_, err = strict.orders.Transition(ctx, so.ID, domain.StatusCancelled, "")
	require.NoError(t, err)
	_, err = strict.orders.Transition(ctx, so.ID, domain.StatusPaid, "")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, [2]int{5, 0}, storetest.Counters(t, strict.store, "v1"))
}
