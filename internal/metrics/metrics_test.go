package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.IncExtraction("Ford.ca", true)
	m.AddMismatches("vehicle", 2)
	m.IncRecreation()
	m.ObserveRun(time.Now(), nil)
	if err := m.Push(context.Background(), "http://localhost:9091", "dealerdiff"); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncExtraction("Ford.ca", true)
	m.IncExtraction("Ford.ca", false)
	m.IncExtraction("Ford.ca", false)
	m.AddMismatches("vehicle", 3)
	m.AddMismatches("vehicle", 0)
	m.IncRecreation()

	if got := testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues("Ford.ca", "error")); got != 2 {
		t.Fatalf("expected 2 failed extractions but got %v", got)
	}
	if got := testutil.ToFloat64(m.MismatchesTotal.WithLabelValues("vehicle")); got != 3 {
		t.Fatalf("expected 3 mismatches but got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionRecreations); got != 1 {
		t.Fatalf("expected 1 recreation but got %v", got)
	}
}

func TestObserveRun(t *testing.T) {
	m := New()
	m.ObserveRun(time.Now().Add(-time.Minute), errors.New("boom"))
	if got := testutil.ToFloat64(m.LastSuccessfulRun); got != 0 {
		t.Fatalf("failed run must not set the success timestamp, got %v", got)
	}
	m.ObserveRun(time.Now().Add(-time.Minute), nil)
	if got := testutil.ToFloat64(m.LastSuccessfulRun); got == 0 {
		t.Fatalf("expected the success timestamp to be set")
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed run but got %v", got)
	}
}

func TestPush(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.IncRecreation()
	if err := m.Push(context.Background(), srv.URL, "dealerdiff"); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if path != "/metrics/job/dealerdiff" {
		t.Fatalf("unexpected push path %q", path)
	}
	if !strings.Contains(body, "dealerdiff_session_recreations_total") {
		t.Fatalf("expected pushed metrics to contain the recreation counter")
	}
}
