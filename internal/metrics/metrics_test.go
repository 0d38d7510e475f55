package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ctgmonitor/internal/domain"
)

func TestCountersAndGauges(t *testing.T) {
	t.Parallel()

	m := New(false)
	m.MessageReceived(domain.StreamHeartRate)
	m.MessageReceived(domain.StreamHeartRate)
	m.DecodeFailed(domain.StreamAI)
	m.ReconnectScheduled(domain.StreamContractions)
	m.SetConnectionStatus(domain.StreamAI, domain.StatusConnected)
	m.SetConnectionStatus(domain.StreamAI, domain.StatusError)
	m.AlertDerived(domain.AlertError)
	m.AlertsActive(7)
	m.Published("sample", nil)
	m.Notified("telegram", errors.New("boom"))

	values := gather(t, m)
	checks := map[string]float64{
		`ctg_samples_received_total{stream="heart_rate"}`:              2,
		`ctg_decode_errors_total{stream="ai"}`:                         1,
		`ctg_reconnect_attempts_total{stream="contractions"}`:          1,
		`ctg_connection_status{status="error",stream="ai"}`:            1,
		`ctg_connection_status{status="connected",stream="ai"}`:        0,
		`ctg_alerts_derived_total{kind="error"}`:                       1,
		`ctg_alerts_active`:                                            7,
		`ctg_published_total{kind="sample",result="ok"}`:               1,
		`ctg_notifications_total{channel="telegram",result="error"}`:   1,
	}
	for key, want := range checks {
		got, ok := values[key]
		if !ok {
			t.Fatalf("metric %s not found in %v", key, values)
		}
		if got != want {
			t.Fatalf("%s=%v want %v", key, got, want)
		}
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	t.Parallel()

	m := New(false)
	m.ObserveRequest("GET", "/api/alerts", 200, 3*time.Millisecond)
	m.SetBufferSize(domain.StreamHeartRate, 42)

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(recorder.Body)
	text := string(body)
	for _, want := range []string{
		`ctg_http_requests_total{method="GET",route="/api/alerts",status="200"} 1`,
		`ctg_buffer_size{stream="heart_rate"} 42`,
		`ctg_http_request_duration_seconds_count{method="GET",route="/api/alerts"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in exposition:\n%s", want, text)
		}
	}
}

// gather flattens counters and gauges into name{labels} -> value.
func gather(t *testing.T, m *Metrics) map[string]float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, pair := range metric.GetLabel() {
				labels = append(labels, pair.GetName()+`="`+pair.GetValue()+`"`)
			}
			key := family.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			}
		}
	}
	return out
}
