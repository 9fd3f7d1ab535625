// Package metrics holds the Prometheus collectors of the reservation engine. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shop"

type Metrics struct {
	StockRejections *prometheus.CounterVec
	SweepRuns       *prometheus.CounterVec
	SweptItems      prometheus.Counter
	SweptUnits      prometheus.Counter
	ExpiredOrders   prometheus.Counter
	SweepDuration   prometheus.Histogram
	Transitions     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StockRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stock_rejections_total",
			Help: "Requests rejected for insufficient stock, by operation.",
		}, []string{"op"}),
		SweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweep_runs_total",
			Help: "Expiry sweeps by outcome.",
		}, []string{"result"}),
		SweptItems: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweep_items_released_total",
			Help: "Expired cart lines released by the sweeper.",
		}),
		SweptUnits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweep_units_released_total",
			Help: "Reserved units returned to the pool by the sweeper.",
		}),
		ExpiredOrders: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweep_orders_expired_total",
			Help: "Pending orders cancelled after their reservation deadline.",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sweep_duration_seconds",
			Help:    "Wall time of one expiry sweep, failed sweeps included.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_transitions_total",
			Help: "Order status changes.",
		}, []string{"from", "to"}),
	}
}

func (m *Metrics) StockRejected(op string) {
	if m == nil {
		return
	}
	m.StockRejections.WithLabelValues(op).Inc()
}

func (m *Metrics) Swept(result string, items, units, orders int) {
	if m == nil {
		return
	}
	m.SweepRuns.WithLabelValues(result).Inc()
	m.SweptItems.Add(float64(items))
	m.SweptUnits.Add(float64(units))
	m.ExpiredOrders.Add(float64(orders))
}

func (m *Metrics) SweepTook(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}

func (m *Metrics) Transitioned(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}
