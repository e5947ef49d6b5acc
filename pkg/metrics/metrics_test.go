package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterRender(t *testing.T) {
	r := New()
	r.Counter("citer_uploads_total", "Total upload requests").Add(3)
	r.Counter(WithLabels("citer_requests_total", "route", "search"), "Requests by route").Inc()
	r.Counter(WithLabels("citer_requests_total", "route", "answer"), "").Add(2)

	out := r.Render()
	for _, want := range []string{
		"# HELP citer_uploads_total Total upload requests",
		"# TYPE citer_uploads_total counter",
		"citer_uploads_total 3",
		`citer_requests_total{route="answer"} 2`,
		`citer_requests_total{route="search"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
}

func TestGauge(t *testing.T) {
	r := New()
	g := r.Gauge("citer_indexed_chunks", "Chunks in the index")
	g.Set(41)
	g.Inc()
	g.Dec()
	g.Inc()

	if !strings.Contains(r.Render(), "citer_indexed_chunks 42") {
		t.Fatalf("render:\n%s", r.Render())
	}
}

func TestHistogramCumulativeBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("citer_search_seconds", "Search latency", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(0.7)
	h.Observe(100) // beyond the last bucket, lands only in +Inf

	out := r.Render()
	for _, want := range []string{
		`citer_search_seconds_bucket{le="0.1"} 1`,
		`citer_search_seconds_bucket{le="1"} 3`,
		`citer_search_seconds_bucket{le="10"} 3`,
		`citer_search_seconds_bucket{le="+Inf"} 4`,
		"citer_search_seconds_count 4",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
}

func TestSameNameReturnsSameMetric(t *testing.T) {
	r := New()
	a := r.Counter("citer_uploads_total", "")
	b := r.Counter("citer_uploads_total", "")
	if a != b {
		t.Fatal("want the same counter instance")
	}
	a.Inc()
	if b.Value() != 1 {
		t.Fatalf("value = %d", b.Value())
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("citer_uploads_total", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "citer_uploads_total 1") {
		t.Fatalf("body:\n%s", rec.Body.String())
	}
}

func TestWithLabelsOddPairs(t *testing.T) {
	if got := WithLabels("m", "only_key"); got != "m" {
		t.Fatalf("got %q", got)
	}
}
