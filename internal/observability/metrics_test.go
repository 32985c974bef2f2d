package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.IncWebhookEvent("PAYMENT_STATUS_CHANGED", "applied")
	m.AddCreditsGranted(100)
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
}

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveAPI("POST", "/api/payments/confirm", "200", 20*time.Millisecond)
	m.ObserveAPI("POST", "/api/payments/confirm", "200", 30*time.Millisecond)
	m.AddCreditsGranted(100)
	m.AddCreditsGranted(-5)
	m.IncOrderTransition("confirmed")
	m.ObserveExternalCall("paygw", "confirm", "ok", 100*time.Millisecond)

	if got := m.apiRequests.Value("POST", "/api/payments/confirm", "200"); got != 2 {
		t.Fatalf("api requests: got %v", got)
	}
	if got := m.creditsGranted.Value(); got != 100 {
		t.Fatalf("credits granted: got %v", got)
	}
	if got := m.externalLatency.Count("paygw", "confirm"); got != 1 {
		t.Fatalf("external latency count: got %v", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`atelier_api_requests_total{method="POST",route="/api/payments/confirm",status="200"} 2`,
		`atelier_credits_granted_total 100`,
		`atelier_order_transitions_total{to="confirmed"} 1`,
		`atelier_api_request_duration_seconds_bucket{method="POST",route="/api/payments/confirm",status="200",le="+Inf"} 2`,
		"# TYPE atelier_api_inflight_requests gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q\n%s", want, out)
		}
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"a", "b"}, []string{`x"y`})
	if got != `{a="x\"y",b="unknown"}` {
		t.Fatalf("labelString: %s", got)
	}
	if got := withLe("", "0.5"); got != `{le="0.5"}` {
		t.Fatalf("withLe: %s", got)
	}
}
