package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/finsight/identity-service/internal/config"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordMetricHelpersNoPanicWhenUninitialized(t *testing.T) {
	metricsMu.Lock()
	appMetrics = nil
	metricsMu.Unlock()

	ctx := context.Background()
	RecordAuthLogin(ctx, "success")
	RecordAuthRegister(ctx, "success")
	RecordAuthLogout(ctx, "success")
	RecordAuthLockout(ctx, "failed_attempts")
	RecordOTPIssued(ctx, "verify", "success")
	RecordOTPConsumed(ctx, "reset", "invalid")
	RecordPasswordReset(ctx, "success")
	RecordTokenValidation(ctx, "ok", "header")
	RecordMiddlewareValidationEvent(ctx, "cors", "allow_origin")
	RecordRateLimitDecision(ctx, "login", "allow", "distributed")
	RecordRateLimitRetryAfter(ctx, "login", "window", time.Second)
	RecordAuthRequestDuration(ctx, "login", "success", 10*time.Millisecond)
	RecordUserProfileEvent(ctx, "read", "success")
	RecordHealthCheckResult(ctx, "db", "ready")
	RecordHealthCheckDuration(ctx, "db", 5*time.Millisecond)
}

func TestRecordMetricHelpersEmitExpectedLabelCardinality(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()

	m := newTestAppMetrics(t, provider)
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
	defer func() {
		metricsMu.Lock()
		appMetrics = nil
		metricsMu.Unlock()
	}()

	RecordAuthLogin(ctx, "success")
	RecordAuthRegister(ctx, "duplicate")
	RecordAuthLogout(ctx, "success")
	RecordAuthLockout(ctx, "failed_attempts")
	RecordOTPIssued(ctx, "verify", "success")
	RecordOTPConsumed(ctx, "reset", "expired")
	RecordPasswordReset(ctx, "success")
	RecordTokenValidation(ctx, "ok", "cookie")
	RecordMiddlewareValidationEvent(ctx, "body_limit", "rejected_too_large")
	RecordRateLimitDecision(ctx, "login", "deny", "local")
	RecordRateLimitRetryAfter(ctx, "login", "window", time.Second)
	RecordAuthRequestDuration(ctx, "login", "success", 10*time.Millisecond)
	RecordUserProfileEvent(ctx, "read", "success")
	RecordHealthCheckResult(ctx, "db", "ready")
	RecordHealthCheckDuration(ctx, "db", 5*time.Millisecond)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	expected := map[string]int{
		"auth.login.attempts":               1,
		"auth.register.attempts":            1,
		"auth.logout.attempts":              1,
		"auth.lockout.events":               1,
		"auth.otp.issued":                   2,
		"auth.otp.consumed":                 2,
		"auth.password_reset.attempts":      1,
		"auth.token.validation.events":      2,
		"http.middleware.validation.events": 2,
		"http.rate_limit.decisions":         3,
		"http.rate_limit.retry_after":       2,
		"auth.request.duration":             2,
		"user.profile.events":               2,
		"health.check.results":              2,
		"health.check.duration":             1,
	}

	observed := collectLabelCardinality(t, rm)
	for metricName, want := range expected {
		got, ok := observed[metricName]
		if !ok {
			t.Fatalf("missing metric datapoint for %s", metricName)
		}
		if got != want {
			t.Fatalf("metric %s label cardinality mismatch: got=%d want=%d", metricName, got, want)
		}
	}
}

func TestInitMetricsDisabledReturnsProvider(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{OTELMetricsEnabled: false}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("init metrics disabled: %v", err)
	}
	if mp == nil {
		t.Fatal("expected non-nil meter provider")
	}
	_ = mp.Shutdown(ctx)
}

func newTestAppMetrics(t *testing.T, provider *sdkmetric.MeterProvider) *AppMetrics {
	t.Helper()
	meter := provider.Meter("observability-test")

	counter := func(name string) metric.Int64Counter {
		t.Helper()
		c, err := meter.Int64Counter(name)
		if err != nil {
			t.Fatalf("create counter %s: %v", name, err)
		}
		return c
	}
	hist := func(name string) metric.Float64Histogram {
		t.Helper()
		h, err := meter.Float64Histogram(name)
		if err != nil {
			t.Fatalf("create histogram %s: %v", name, err)
		}
		return h
	}

	return &AppMetrics{
		authLoginCounter:         counter("auth.login.attempts"),
		authRegisterCounter:      counter("auth.register.attempts"),
		authLogoutCounter:        counter("auth.logout.attempts"),
		authLockoutCounter:       counter("auth.lockout.events"),
		otpIssuedCounter:         counter("auth.otp.issued"),
		otpConsumedCounter:       counter("auth.otp.consumed"),
		passwordResetCounter:     counter("auth.password_reset.attempts"),
		tokenValidationCounter:   counter("auth.token.validation.events"),
		middlewareEventCounter:   counter("http.middleware.validation.events"),
		rateLimitDecisionCounter: counter("http.rate_limit.decisions"),
		rateLimitRetryAfter:      hist("http.rate_limit.retry_after"),
		authReqDuration:          hist("auth.request.duration"),
		userProfileCounter:       counter("user.profile.events"),
		healthCheckResultCounter: counter("health.check.results"),
		healthCheckDuration:      hist("health.check.duration"),
	}
}

func collectLabelCardinality(t *testing.T, rm metricdata.ResourceMetrics) map[string]int {
	t.Helper()
	out := map[string]int{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Attributes.Len()
				}
			case metricdata.Sum[float64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Attributes.Len()
				}
			case metricdata.Histogram[int64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Attributes.Len()
				}
			case metricdata.Histogram[float64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Attributes.Len()
				}
			}
		}
	}
	return out
}
