package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartItemsAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_cart_items_added_total",
		Help: "Units successfully added to carts",
	})

	CartRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_rejections_total",
		Help: "Cart mutations rejected by the stock guard",
	}, []string{"reason"})

	CartsClearedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_carts_cleared_total",
		Help: "Non-empty carts cleared",
	})

	WishlistChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_wishlist_changes_total",
		Help: "Wishlist additions and removals",
	}, []string{"op"})

	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_placed_total",
		Help: "Orders accepted by the order service",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_orders_failed_total",
		Help: "Orders that failed validation or placement",
	}, []string{"reason"})

	OrderPlacementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_order_placement_latency_seconds",
		Help:    "Latency of the remote order placement call",
		Buckets: prometheus.DefBuckets,
	})

	AuthOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_auth_outcomes_total",
		Help: "Auth session operations by outcome",
	}, []string{"op", "outcome"})

	PersistenceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_persistence_failures_total",
		Help: "Snapshot reads and writes that failed and were ignored",
	}, []string{"key", "op"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_events_published_total",
		Help: "Storefront events written to Kafka",
	}, []string{"type", "result"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_events_consumed_total",
		Help: "Storefront events handled by consumers",
	}, []string{"type", "result"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_active_sessions",
		Help: "Visitor sessions held in memory",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
