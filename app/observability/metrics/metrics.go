package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	CheckoutRequestsTotal  metric.Int64Counter
	WebhookEventsTotal     metric.Int64Counter
	QuotaDeniedTotal       metric.Int64Counter
	DbQueryDurationSeconds metric.Float64Histogram
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("ultraorca-api")
		var err error
		m := &AppMetrics{}

		m.CheckoutRequestsTotal, err = meter.Int64Counter(
			"checkout_requests_total",
			metric.WithDescription("Total number of checkout attempts by provider and outcome"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create checkout_requests_total: %v", err)
		}

		m.WebhookEventsTotal, err = meter.Int64Counter(
			"webhook_events_total",
			metric.WithDescription("Total number of gateway webhook events by provider and kind"),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create webhook_events_total: %v", err)
		}

		m.QuotaDeniedTotal, err = meter.Int64Counter(
			"quota_denied_total",
			metric.WithDescription("Quote creations denied by the plan limit"),
			metric.WithUnit("{denial}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create quota_denied_total: %v", err)
		}

		m.DbQueryDurationSeconds, err = meter.Float64Histogram(
			"db_query_duration_seconds",
			metric.WithDescription("Duration of database queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_duration_seconds: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
