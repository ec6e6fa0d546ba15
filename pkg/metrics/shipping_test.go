package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestShippingMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewShippingMetrics(reg)
	metrics.ObserveQuote("covered", 2, 250*time.Millisecond)
	metrics.IncUnshippable("no_zone_for_address")
	metrics.IncUnshippable("no_zone_for_address")
	metrics.AddRuleFetchFailures(3)
	metrics.AddMisconfiguredRules(1)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "shipping_quote_total", "tier", "2"); err != nil {
		t.Fatalf("fetch quotes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected quotes=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "shipping_unshippable_products_total", "reason", "no_zone_for_address"); err != nil {
		t.Fatalf("fetch unshippable: %v", err)
	} else if got != 2 {
		t.Fatalf("expected unshippable=2, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "shipping_quote_duration_seconds", "outcome", "covered"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}

	if got := fetchPlainCounter(mfs, "shipping_rule_fetch_failures_total"); got != 3 {
		t.Fatalf("expected fetch failures=3, got %f", got)
	}
	if got := fetchPlainCounter(mfs, "shipping_misconfigured_rules_total"); got != 1 {
		t.Fatalf("expected misconfigured=1, got %f", got)
	}
}

func TestShippingMetricsNilSafe(t *testing.T) {
	var metrics *ShippingMetrics
	metrics.ObserveQuote("covered", 1, time.Second)
	metrics.IncUnshippable("")
	metrics.AddRuleFetchFailures(1)
	metrics.AddMisconfiguredRules(1)

	unregistered := NewShippingMetrics(nil)
	unregistered.ObserveQuote("", 0, time.Second)
	unregistered.AddRuleFetchFailures(2)
}

func TestShippingMetricsUnknownOutcomeLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewShippingMetrics(reg)
	metrics.ObserveQuote("", 0, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "shipping_quote_total", "outcome", "unknown"); err != nil {
		t.Fatalf("fetch quotes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unknown outcome=1, got %f", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchPlainCounter(mfs []*dto.MetricFamily, name string) float64 {
	mf := findMetricFamily(mfs, name)
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetCounter().GetValue()
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
