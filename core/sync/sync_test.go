package sync_test

import (
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"example.com/gpsdo/base/metrics"
	"example.com/gpsdo/core/sync"
)

func gatherNames(t *testing.T, reg *prometheus.Registry) []string {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	return names
}

func TestCollector(t *testing.T) {
	w, stepper, _ := newWatch(zap.NewNop())
	reg := prometheus.NewRegistry()
	reg.MustRegister(sync.NewCollector(w))

	names := gatherNames(t, reg)
	for _, want := range []string{metrics.SyncModeN, metrics.SyncDACCodeN, metrics.SyncStepInFlightN} {
		if !slices.Contains(names, want) {
			t.Errorf("metrics %v: missing %s", names, want)
		}
	}
	if slices.Contains(names, metrics.SyncPhaseErrorN) {
		t.Errorf("metrics %v: got %s before the first sample", names, metrics.SyncPhaseErrorN)
	}

	feed(t, w, stepper, []float64{100})
	names = gatherNames(t, reg)
	if !slices.Contains(names, metrics.SyncPhaseErrorN) {
		t.Errorf("metrics %v: missing %s", names, metrics.SyncPhaseErrorN)
	}
}

func gaugeValues(reg *prometheus.Registry) (map[string]float64, error) {
	mfs, err := reg.Gather()
	if err != nil {
		return nil, err
	}
	vals := make(map[string]float64)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			vals[mf.GetName()] = m.GetGauge().GetValue()
		}
	}
	return vals, nil
}

func TestCollectorConcurrentScrapes(t *testing.T) {
	w, stepper, _ := newWatch(zap.NewNop())
	reg := prometheus.NewRegistry()
	reg.MustRegister(sync.NewCollector(w))
	feed(t, w, stepper, []float64{-700})

	const scrapes = 8
	errs := make(chan error, scrapes)
	results := make(chan map[string]float64, scrapes)
	for i := 0; i < scrapes; i++ {
		go func() {
			vals, err := gaugeValues(reg)
			errs <- err
			results <- vals
		}()
	}
	for i := 0; i < scrapes; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Gather failed: %v", err)
		}
		vals := <-results
		if got := vals[metrics.SyncPhaseErrorN]; got != -700e-9 {
			t.Errorf("%s: got %v, want %v", metrics.SyncPhaseErrorN, got, -700e-9)
		}
		if got := vals[metrics.SyncModeN]; got != float64(sync.ModeStep) {
			t.Errorf("%s: got %v, want %v", metrics.SyncModeN, got, float64(sync.ModeStep))
		}
		if got := vals[metrics.SyncDACCodeN]; got != 13000 {
			t.Errorf("%s: got %v, want 13000", metrics.SyncDACCodeN, got)
		}
	}
}
