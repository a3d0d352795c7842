// Package sync disciplines the oscillator's phase and frequency to the
// GNSS reference.
package sync

import (
	"github.com/prometheus/client_golang/prometheus"

	"example.com/gpsdo/base/metrics"
)

// Collector exports the phase watch status at scrape time. Each scrape
// reads one Status snapshot and emits constant metrics from it.
type Collector struct {
	w *PhaseWatch

	mode         *prometheus.Desc
	phaseError   *prometheus.Desc
	code         *prometheus.Desc
	stepInFlight *prometheus.Desc
	freqError    *prometheus.Desc
}

func NewCollector(w *PhaseWatch) *Collector {
	return &Collector{
		w:            w,
		mode:         prometheus.NewDesc(metrics.SyncModeN, metrics.SyncModeH, nil, nil),
		phaseError:   prometheus.NewDesc(metrics.SyncPhaseErrorN, metrics.SyncPhaseErrorH, nil, nil),
		code:         prometheus.NewDesc(metrics.SyncDACCodeN, metrics.SyncDACCodeH, nil, nil),
		stepInFlight: prometheus.NewDesc(metrics.SyncStepInFlightN, metrics.SyncStepInFlightH, nil, nil),
		freqError:    prometheus.NewDesc(metrics.SyncFreqErrorN, metrics.SyncFreqErrorH, nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.mode
	ch <- c.phaseError
	ch <- c.code
	ch <- c.stepInFlight
	ch <- c.freqError
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.w.Status()
	var inFlight float64
	if s.StepInFlight {
		inFlight = 1
	}
	ch <- prometheus.MustNewConstMetric(c.mode, prometheus.GaugeValue, float64(s.Mode))
	ch <- prometheus.MustNewConstMetric(c.code, prometheus.GaugeValue, float64(s.Code))
	ch <- prometheus.MustNewConstMetric(c.stepInFlight, prometheus.GaugeValue, inFlight)
	if s.HavePhaseError {
		ch <- prometheus.MustNewConstMetric(c.phaseError, prometheus.GaugeValue, s.PhaseError.Seconds())
	}
	if s.HaveFreqError {
		ch <- prometheus.MustNewConstMetric(c.freqError, prometheus.GaugeValue, s.FreqErrorPPB)
	}
}
