package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_ServiceMetrics_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{Path: "/m", Version: "test"})

	observability.ObserveProviderFetch("ofo", "ok")
	observability.ObserveProviderLatency("ofo", 0.02)
	observability.AddProviderVehicles("ofo", 3)
	observability.AddCacheHits(3)
	observability.AddCacheMisses(1)
	observability.ObserveCacheOp("get", nil, 0.002)
	observability.ObserveQuery(0.05, 4)
	observability.ObserveGeocode("found")
	observability.SetHotKeysGauge("hot", 42)

	req := httptest.NewRequest(http.MethodGet, "/m", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	mustContain := []string{
		`provider_latency_seconds_bucket`,
		`cache_op_duration_seconds_count`,
		`aggregate_query_duration_seconds_count`,
		`hotness_tracked_keys{tier="hot"} 42`,
	}
	for _, s := range mustContain {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}

	assertHasMetricLine(t, body, "provider_fetch_total", `outcome="ok"`, `provider="ofo"`)
	assertHasMetricLine(t, body, "cache_results_total", `outcome="hit"`)
	assertHasMetricLine(t, body, "geocode_results_total", `outcome="found"`)
	if p.Path() != "/m" {
		t.Fatalf("path=%q", p.Path())
	}
}
