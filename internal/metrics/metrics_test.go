package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	testRegOnce sync.Once
	testReg     *prometheus.Registry
)

// registry returns the registry the package collectors were registered with.
// Register is one-shot per process, so every test shares it.
func registry(t *testing.T) *prometheus.Registry {
	t.Helper()
	testRegOnce.Do(func() {
		testReg = prometheus.NewRegistry()
		if err := Register(testReg); err != nil {
			t.Fatalf("register: %v", err)
		}
	})
	return testReg
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := registry(t)
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	ObserveOperation("start", "spark", "ok", 1.25)
	ObserveOperation("stop", "spark", "timeout", 120)
	IncTimeout("stop", "spark")
	IncProbe(ProbeAlive)
	IncProbe(ProbeNoPID)
	AddRunningProcesses("spark", 1)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"interpctl_lifecycle_operations_total":    false,
		"interpctl_lifecycle_duration_seconds":    false,
		"interpctl_lifecycle_timeouts_total":      false,
		"interpctl_probe_results_total":           false,
		"interpctl_interpreter_running_processes": false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, seen := range wantNames {
		if !seen {
			t.Fatalf("metric %s not gathered", n)
		}
	}
}

func TestHandlerForServesMetrics(t *testing.T) {
	reg := registry(t)
	IncProbe(ProbeDead)

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `interpctl_probe_results_total{result="dead"}`) {
		t.Fatalf("probe counter missing from exposition:\n%s", b)
	}
}
