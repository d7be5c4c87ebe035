package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMiddlewareRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}

	handler := collector.Middleware("/v1/sessions", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("handler status = %d, want 201", rr.Code)
	}

	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("/v1/sessions", "POST", "201")); got != 1 {
		t.Fatalf("api_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "api_request_duration_seconds", map[string]string{
		"route":  "/v1/sessions",
		"method": "POST",
	}); count != 1 {
		t.Fatalf("api_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestMiddlewareDefaultsToOK(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}

	// A handler that never calls WriteHeader implicitly returns 200.
	handler := collector.Middleware("/v1/puzzles", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/puzzles", nil))

	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("/v1/puzzles", "GET", "200")); got != 1 {
		t.Fatalf("api_requests_total = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}
	collector.SessionOpened()
	collector.SessionOpened()
	collector.SessionClosed()
	collector.StreamConnected()
	collector.Requests.WithLabelValues("/v1/puzzles", "GET", "200").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"api_requests_total",
		"active_sessions 1",
		"stream_clients 1",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func TestEngineCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.RecordTwist("3^3", TwistApplied)
	collector.RecordTwist("3^3", TwistApplied)
	collector.RecordTwist("3^3", TwistBlocked)
	collector.RecordIntern(false)
	collector.RecordIntern(true)
	collector.SetEntries(7)
	collector.ObserveGripDuration(3 * time.Millisecond)
	collector.RecordScramble()
	collector.RecordSolve()

	if got := testutil.ToFloat64(collector.TwistsTotal.WithLabelValues("3^3", TwistApplied)); got != 2 {
		t.Errorf("twists_total applied = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.TwistsTotal.WithLabelValues("3^3", TwistBlocked)); got != 1 {
		t.Errorf("twists_total blocked = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.CacheInterns.WithLabelValues("hit")); got != 1 {
		t.Errorf("transform_cache_interns_total hit = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.CacheEntries); got != 7 {
		t.Errorf("transform_cache_entries = %v, want 7", got)
	}
	if got := testutil.ToFloat64(collector.ScramblesTotal); got != 1 {
		t.Errorf("scrambles_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "grip_computation_duration_seconds", nil); count != 1 {
		t.Errorf("grip_computation_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestCollectorsShareRegistry(t *testing.T) {
	// Registering twice against the same registry reuses the existing
	// collectors instead of failing.
	reg := prometheus.NewRegistry()
	first, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	second, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector (again): %v", err)
	}

	first.RecordScramble()
	second.RecordScramble()
	if got := testutil.ToFloat64(first.ScramblesTotal); got != 2 {
		t.Errorf("shared scrambles_total = %v, want 2", got)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
