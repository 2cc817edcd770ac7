package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMetrics_runsAndStages(t *testing.T) {
	m := New()
	m.ObserveRun(true)
	m.ObserveRun(false)
	m.ObserveRun(false)
	m.ObserveStage("rendering", 3*time.Second)
	m.IncPlanDefaults()
	m.SetInFlight(true)

	out := scrape(t, m)
	for _, want := range []string{
		`autotok_runs_total{result="success"} 1`,
		`autotok_runs_total{result="failure"} 2`,
		`autotok_stage_duration_seconds_count{stage="rendering"} 1`,
		`autotok_plan_defaults_total 1`,
		`autotok_run_in_flight 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestMetrics_nilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRun(true)
	m.ObserveStage("planning", time.Second)
	m.IncPlanDefaults()
	m.SetInFlight(true)
	m.IncRequests()
	m.IncErrors()
}

func TestRequestMiddleware_countsErrors(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))

	out := scrape(t, m)
	if !strings.Contains(out, "autotok_http_requests_total 2") {
		t.Errorf("expected 2 requests:\n%s", out)
	}
	if !strings.Contains(out, "autotok_http_errors_total 1") {
		t.Errorf("expected 1 error:\n%s", out)
	}
}
