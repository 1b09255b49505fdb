package monitoring

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cultureticks_checkout_attempts_total",
		Help: "Checkout attempts by outcome (accepted, rejected, payment_failed).",
	}, []string{"outcome"})

	TicketsSold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cultureticks_tickets_sold_total",
		Help: "Tickets moved to sold.",
	})

	TicketsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cultureticks_tickets_released_total",
		Help: "Pending tickets returned to available inventory.",
	})

	TicketsRefunded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cultureticks_tickets_refunded_total",
		Help: "Sold tickets refunded.",
	})

	PendingSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cultureticks_pending_swept_total",
		Help: "Stale pending tickets reclaimed by the sweep.",
	})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cultureticks_webhook_deliveries_total",
		Help: "Payment notifications by resolution (completed, released, expired, error).",
	}, []string{"outcome"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cultureticks_http_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// RequestMetrics records per-route request latency.
func RequestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			// Route template, not the raw URL, keeps label cardinality bounded.
			route := c.Request().URL.Path
			if ri := c.RouteInfo(); ri != nil {
				route = ri.Path()
			}
			httpRequestDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}
