package observability

import (
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InstallMetricsForTest swaps the package instruments for ones backed by the
// given provider and returns a restore func.
func InstallMetricsForTest(t *testing.T, provider *sdkmetric.MeterProvider) func() {
	t.Helper()
	m := newTestAppMetrics(t, provider)
	metricsMu.Lock()
	prev := appMetrics
	appMetrics = m
	metricsMu.Unlock()
	return func() {
		metricsMu.Lock()
		appMetrics = prev
		metricsMu.Unlock()
	}
}
