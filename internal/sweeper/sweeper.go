// Package sweeper returns expired cart reservations to the available pool on a schedule.
package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-reservations/internal/domain"
	"github.com/ariefcatur/go-cart-reservations/internal/events"
	"github.com/ariefcatur/go-cart-reservations/internal/metrics"
	"github.com/ariefcatur/go-cart-reservations/internal/reservation"
	"github.com/ariefcatur/go-cart-reservations/internal/store"
)

const (
	DefaultInterval  = 2 * time.Minute
	DefaultBatchSize = 500
	DefaultLockTTL   = time.Minute

	lockKey = "lock:sweep:reservations"
)

// ErrSweepInProgress is returned when another sweep (in this process or, with a Locker,
// anywhere) has not finished yet.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Locker is a cross-process mutex. unlock is safe to call after the lock expired.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// OrderExpirer cancels pending orders whose reservation deadline passed.
type OrderExpirer interface {
	ExpirePendingOrders(ctx context.Context, now time.Time, limit int) (int, error)
}

type Report struct {
	ItemsReleased int `json:"items_released"`
	UnitsReleased int `json:"units_released"`
	OrdersExpired int `json:"orders_expired"`
	Failed        int `json:"failed"`
}

type Sweeper struct {
	Store     store.Store
	Interval  time.Duration
	BatchSize int
	// Orders, when set, also cancels PENDING orders past their reservation deadline.
	Orders      OrderExpirer
	Locker      Locker
	LockTTL     time.Duration
	Publisher   events.Publisher
	ServiceName string
	Now         func() time.Time
	Log         *zap.Logger
	Metrics     *metrics.Metrics

	running atomic.Bool
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sweeper) log() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

func (s *Sweeper) interval() time.Duration {
	if s.Interval > 0 {
		return s.Interval
	}
	return DefaultInterval
}

func (s *Sweeper) batch() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return DefaultBatchSize
}

func (s *Sweeper) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return DefaultLockTTL
}

// Run sweeps every Interval until ctx is cancelled. A sweep in flight at cancellation stops
// after its current item; releases already committed stay.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval())
	defer t.Stop()

	s.log().Info("sweeper started", zap.Duration("interval", s.interval()), zap.Int("batch_size", s.batch()))
	for {
		select {
		case <-ctx.Done():
			s.log().Info("sweeper stopped")
			return nil
		case <-t.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) && ctx.Err() == nil {
				s.log().Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce releases every cart reservation that expired before now, at most BatchSize of
// them, each in its own transaction. A reservation refreshed, removed or checked out since
// it was listed is skipped. Per-item failures are logged and counted, not returned.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Report{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	if s.Locker != nil {
		unlock, ok, err := s.Locker.TryLock(ctx, lockKey, s.lockTTL())
		switch {
		case err != nil:
			// the in-process guard still holds; row locks keep concurrent sweeps correct
			s.log().Warn("sweep lock unavailable, sweeping anyway", zap.Error(err))
		case !ok:
			return Report{}, ErrSweepInProgress
		default:
			defer unlock()
		}
	}

	start := time.Now()
	defer func() { s.Metrics.SweepTook(time.Since(start)) }()

	now := s.now()
	var expired []domain.Reservation
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		expired, err = tx.ListExpiredCartReservations(ctx, now, s.batch())
		return err
	})
	if err != nil {
		s.Metrics.Swept("error", 0, 0, 0)
		return Report{}, err
	}

	var (
		rep   Report
		lines []events.ReleasedLine
	)
	for _, r := range expired {
		if ctx.Err() != nil {
			break
		}
		released, err := s.releaseOne(ctx, r.ID, r.VariantID, now)
		if err != nil {
			rep.Failed++
			s.log().Warn("release expired reservation failed",
				zap.String("reservation_id", r.ID), zap.String("cart_id", r.CartID),
				zap.String("variant_id", r.VariantID), zap.Error(err))
			continue
		}
		if released.ID == "" {
			continue
		}
		rep.ItemsReleased++
		rep.UnitsReleased += released.Quantity
		lines = append(lines, events.ReleasedLine{CartID: released.CartID, VariantID: released.VariantID, Qty: released.Quantity})
	}

	if s.Orders != nil && ctx.Err() == nil {
		n, err := s.Orders.ExpirePendingOrders(ctx, now, s.batch())
		if err != nil {
			s.log().Warn("expire pending orders failed", zap.Error(err))
			rep.Failed++
		}
		rep.OrdersExpired = n
	}

	result := "ok"
	if rep.Failed > 0 {
		result = "partial"
	}
	s.Metrics.Swept(result, rep.ItemsReleased, rep.UnitsReleased, rep.OrdersExpired)
	if rep.ItemsReleased > 0 || rep.OrdersExpired > 0 || rep.Failed > 0 {
		s.log().Info("sweep finished",
			zap.Int("items_released", rep.ItemsReleased), zap.Int("units_released", rep.UnitsReleased),
			zap.Int("orders_expired", rep.OrdersExpired), zap.Int("failed", rep.Failed))
	}
	if len(lines) > 0 {
		s.publish(ctx, rep, lines)
	}
	return rep, nil
}

// releaseOne re-reads the reservation under the stock row lock and releases it if it is
// still a cart hold that expired before now. A zero Reservation means nothing was done.
func (s *Sweeper) releaseOne(ctx context.Context, id, variantID string, now time.Time) (domain.Reservation, error) {
	var released domain.Reservation
	err := s.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetStock(ctx, variantID); err != nil {
			return err
		}
		r, err := tx.GetReservation(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !r.HeldByCart() || !r.Expired(now) {
			return nil
		}
		if err := reservation.Release(ctx, tx, r); err != nil {
			return err
		}
		released = r
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return released, nil
}

func (s *Sweeper) publish(ctx context.Context, rep Report, lines []events.ReleasedLine) {
	if s.Publisher == nil {
		return
	}
	env, err := events.New(events.EventReservationsReleased, s.ServiceName, "", events.ReservationsReleasedPayload{
		ItemsReleased: rep.ItemsReleased,
		UnitsReleased: rep.UnitsReleased,
		Lines:         lines,
	})
	if err == nil {
		err = s.Publisher.PublishEvent(ctx, events.TopicReservationsReleased, env)
	}
	if err != nil {
		s.log().Warn("event not published", zap.String("event_type", events.EventReservationsReleased), zap.Error(err))
	}
}
