package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_orders_created_total",
		Help: "Total number of orders created from a checkout",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrderCreateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_order_create_latency_seconds",
		Help:    "Latency of the order creation transaction",
		Buckets: prometheus.DefBuckets,
	})

	OrderStatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_order_status_transitions_total",
		Help: "Order status transitions applied by gateway confirmations",
	}, []string{"from", "to"})

	ConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payu_confirmations_total",
		Help: "Gateway confirmations by outcome",
	}, []string{"result"})

	ConfirmationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payu_confirmation_latency_seconds",
		Help:    "Latency of confirmation processing",
		Buckets: prometheus.DefBuckets,
	})

	ReturnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payu_returns_total",
		Help: "Browser returns from the gateway by display status",
	}, []string{"status"})

	StockAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_stock_applied_total",
		Help: "Orders whose stock decrement has been applied",
	})

	StockClampedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_stock_clamped_total",
		Help: "Stock decrements that were clamped at zero",
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
