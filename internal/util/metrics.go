package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_placed_total",
		Help: "Total number of orders placed at checkout",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_orders_failed_total",
		Help: "Total number of checkouts that did not produce an order",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrderStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_order_status_changes_total",
		Help: "Order status changes by target status",
	}, []string{"status"})

	OrderQueryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_order_query_latency_seconds",
		Help:    "Latency of customer order history queries",
		Buckets: prometheus.DefBuckets,
	})

	PreferredAddressChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_preferred_address_changes_total",
		Help: "Preferred shipping address changes by cause",
	}, []string{"cause"})

	ReturnsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_returns_created_total",
		Help: "Total number of returns created by reason",
	}, []string{"reason"})

	ReturnStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_return_status_changes_total",
		Help: "Return status changes by target status",
	}, []string{"status"})

	RestocksAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_restocks_applied_total",
		Help: "Return restocks that incremented product stock",
	})

	RestocksSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_restocks_skipped_total",
		Help: "Restock requests that did not change stock",
	}, []string{"reason"})

	FiscalValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_fiscal_validations_total",
		Help: "Fiscal code validations by result",
	}, []string{"result"})

	ExchangeRateLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_exchange_rate_lookups_total",
		Help: "Exchange rate lookups by source",
	}, []string{"source"})

	StockCacheUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_stock_cache_updates_total",
		Help: "Stock cache adjustments applied from domain events",
	}, []string{"event_type"})

	StockCacheReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_stock_cache_reads_total",
		Help: "Storefront stock reads by outcome (hit, miss, error)",
	}, []string{"result"})

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
