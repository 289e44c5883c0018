package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsLabelsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.ObserveRequest("/api/v1/bookings/{bookingId}", http.MethodGet, http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest("/api/v1/bookings/{bookingId}", http.MethodGet, http.StatusOK, 30*time.Millisecond)
	m.ObserveRequest("", http.MethodGet, http.StatusNotFound, time.Millisecond)
	m.IncPanic()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "livo_http_requests_total", "route", "/api/v1/bookings/{bookingId}")
	require.NoError(t, err)
	require.Equal(t, 2.0, got)

	got, err = fetchCounterValue(mfs, "livo_http_requests_total", "route", "unmatched")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	sum, err := fetchHistogramSum(mfs, "livo_http_request_duration_seconds", "route", "/api/v1/bookings/{bookingId}")
	require.NoError(t, err)
	require.InDelta(t, 0.05, sum, 1e-9)

	panics := findMetricFamily(mfs, "livo_http_panics_recovered_total")
	require.NotNil(t, panics)
	require.Equal(t, 1.0, panics.GetMetric()[0].GetCounter().GetValue())
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.ObserveRequest("/x", http.MethodGet, http.StatusOK, time.Millisecond)
	m.IncPanic()
	NewHTTPMetrics(nil).IncPanic()
}

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncRow("booking_confirmed", OutboxPublished)
	m.IncRow("booking_confirmed", OutboxPublished)
	m.IncRow("refund_requested", OutboxDeadLettered)
	m.ObserveLag("booking_confirmed", 2*time.Second)
	m.ObserveLag("booking_confirmed", -time.Second)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "livo_outbox_rows_total", "outcome", OutboxDeadLettered)
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	sum, err := fetchHistogramSum(mfs, "livo_outbox_publish_lag_seconds", "event_type", "booking_confirmed")
	require.NoError(t, err)
	require.InDelta(t, 2.0, sum, 1e-9)

	var nilMetrics *OutboxMetrics
	nilMetrics.IncRow("x", OutboxRetried)
	nilMetrics.ObserveLag("x", time.Second)
}
