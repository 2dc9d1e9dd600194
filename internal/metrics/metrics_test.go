package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveMutation(t *testing.T) {
	before := testutil.ToFloat64(MutationsTotal.WithLabelValues("add", "ok"))
	ObserveMutation("add", "ok", time.Now().Add(-10*time.Millisecond))
	after := testutil.ToFloat64(MutationsTotal.WithLabelValues("add", "ok"))
	if after != before+1 {
		t.Errorf("threads_mutations_total{add,ok} = %v, want %v", after, before+1)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	CacheHits.WithLabelValues("roots").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "threads_cache_hits_total") {
		t.Error("metrics output missing threads_cache_hits_total")
	}
}
