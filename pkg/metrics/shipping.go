package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ShippingMetrics records shipping computation passes.
type ShippingMetrics struct {
	quoteDuration *prometheus.HistogramVec
	quotes        *prometheus.CounterVec
	unshippable   *prometheus.CounterVec
	fetchFailures prometheus.Counter
	misconfigured prometheus.Counter
}

// NewShippingMetrics registers the shipping metrics on the provided registerer.
func NewShippingMetrics(reg prometheus.Registerer) *ShippingMetrics {
	if reg == nil {
		return &ShippingMetrics{}
	}
	quoteDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shipping_quote_duration_seconds",
		Help:    "Duration of shipping quote computations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	quotes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shipping_quote_total",
		Help: "Shipping quote computations by outcome and combination tier.",
	}, []string{"outcome", "tier"})
	unshippable := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shipping_unshippable_products_total",
		Help: "Products excluded from shipping computation.",
	}, []string{"reason"})
	fetchFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shipping_rule_fetch_failures_total",
		Help: "Rule lookups that failed and were treated as absent.",
	})
	misconfigured := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shipping_misconfigured_rules_total",
		Help: "Rules priced with the fallback base price.",
	})
	reg.MustRegister(quoteDuration, quotes, unshippable, fetchFailures, misconfigured)
	return &ShippingMetrics{
		quoteDuration: quoteDuration,
		quotes:        quotes,
		unshippable:   unshippable,
		fetchFailures: fetchFailures,
		misconfigured: misconfigured,
	}
}

// ObserveQuote records one quote computation.
func (m *ShippingMetrics) ObserveQuote(outcome string, tier int, duration time.Duration) {
	if m == nil || m.quoteDuration == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	m.quoteDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.quotes.WithLabelValues(outcome, strconv.Itoa(tier)).Inc()
}

// IncUnshippable counts one excluded product.
func (m *ShippingMetrics) IncUnshippable(reason string) {
	if m == nil || m.unshippable == nil {
		return
	}
	m.unshippable.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *ShippingMetrics) AddRuleFetchFailures(count int) {
	if m == nil || m.fetchFailures == nil || count <= 0 {
		return
	}
	m.fetchFailures.Add(float64(count))
}

func (m *ShippingMetrics) AddMisconfiguredRules(count int) {
	if m == nil || m.misconfigured == nil || count <= 0 {
		return
	}
	m.misconfigured.Add(float64(count))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
