package metrics

import (
	"net/http"
	"time"

	"marketplace-order-service/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketplace_orders"

// Prometheus implements service.Metrics on its own registry.
type Prometheus struct {
	reg *prometheus.Registry

	checkouts        *prometheus.CounterVec
	ordersCreated    prometheus.Counter
	checkoutDuration prometheus.Histogram
	webhooks         *prometheus.CounterVec
	stockAdjusted    *prometheus.CounterVec
	stockFailures    prometheus.Counter
}

func New() *Prometheus {
	p := &Prometheus{
		reg: prometheus.NewRegistry(),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkouts by outcome.",
		}, []string{"outcome"}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Vendor orders created by checkouts.",
		}),
		checkoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_seconds",
			Help:      "Duration of successful checkouts.",
			Buckets:   prometheus.DefBuckets,
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Payment webhook deliveries by outcome.",
		}, []string{"outcome"}),
		stockAdjusted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_adjustments_total",
			Help:      "Stock adjustment attempts by outcome.",
		}, []string{"outcome"}),
		stockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_adjustment_failures_total",
			Help: "Stock adjustments that could not be applied.",
		}),
	}
	p.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.checkouts, p.ordersCreated, p.checkoutDuration,
		p.webhooks, p.stockAdjusted, p.stockFailures,
	)
	return p
}

func (p *Prometheus) CheckoutCompleted(orders int, d time.Duration) {
	p.checkouts.WithLabelValues("completed").Inc()
	p.ordersCreated.Add(float64(orders))
	p.checkoutDuration.Observe(d.Seconds())
}

func (p *Prometheus) CheckoutFailed(kind service.Kind) {
	p.checkouts.WithLabelValues(string(kind)).Inc()
}

func (p *Prometheus) WebhookProcessed(outcome string) {
	p.webhooks.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) StockAdjusted(outcome string) {
	p.stockAdjusted.WithLabelValues(outcome).Inc()
	if outcome == "failed" {
		p.stockFailures.Inc()
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}
