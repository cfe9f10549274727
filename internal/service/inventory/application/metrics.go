// internal/service/inventory/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_total",
		Help: "Reservation lifecycle outcomes.",
	}, []string{"outcome"})

	stockLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "inventory_stock_level",
		Help: "Current on-hand stock per warehouse and SKU.",
	}, []string{"warehouse", "sku"})

	sweepReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_sweep_released_total",
		Help: "Reservations released by the expiry sweep.",
	})

	allocationAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_allocation_attempts",
		Help:    "Selection attempts needed per successful allocation.",
		Buckets: []float64{1, 2, 3, 4, 5},
	})
)
