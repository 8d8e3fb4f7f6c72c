// Package telemetry exposes engine state as Prometheus metrics and exports
// persisted history as CSV.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lazypower/homeostat/internal/engine"
)

const namespace = "homeostat"

var (
	// CheckpointOps counts checkpoint saves and restores by outcome.
	CheckpointOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkpoint_ops_total",
		Help:      "Checkpoint saves and restores by operation and result.",
	}, []string{"op", "result"})

	// OracleCalls counts classifier, reflector and refinement calls.
	OracleCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oracle_calls_total",
		Help:      "Language model oracle calls by oracle and result.",
	}, []string{"oracle", "result"})
)

// RecordCheckpoint counts one checkpoint operation. failed is the number of
// files that could not be copied.
func RecordCheckpoint(op string, failed int, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case failed > 0:
		result = "partial"
	}
	CheckpointOps.WithLabelValues(op, result).Inc()
}

// RecordOracle counts one oracle call.
func RecordOracle(oracle string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	OracleCalls.WithLabelValues(oracle, result).Inc()
}

// Source is what the collector reads on every scrape.
type Source interface {
	State() engine.State
	Stats() engine.Stats
}

// Collector reports engine state at scrape time.
type Collector struct {
	src Source

	drive      *prometheus.Desc
	baseline   *prometheus.Desc
	energy     *prometheus.Desc
	fatigue    *prometheus.Desc
	pain       *prometheus.Desc
	samples    *prometheus.Desc
	events     *prometheus.Desc
	mutations  *prometheus.Desc
	persistErr *prometheus.Desc
	denied     *prometheus.Desc
	reflexes   *prometheus.Desc
	sleeps     *prometheus.Desc
}

// NewCollector builds a collector over src.
func NewCollector(src Source) *Collector {
	d := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		src:        src,
		drive:      d("drive_level", "Current drive level.", "drive"),
		baseline:   d("drive_baseline", "Resting baseline of a drive.", "drive"),
		energy:     d("energy", "Energy budget, 0 to 100."),
		fatigue:    d("fatigue", "Accumulated fatigue (sleep pressure)."),
		pain:       d("pain", "Pain level, 0 to 1."),
		samples:    d("plasticity_samples", "Samples waiting for the next consolidation."),
		events:     d("event_log_entries", "Entries in the event log."),
		mutations:  d("mutations_total", "Mutating engine operations."),
		persistErr: d("persist_failures_total", "Snapshot saves that failed."),
		denied:     d("energy_denied_total", "Actions refused for lack of energy."),
		reflexes:   d("reflexes_total", "Operations that ended with cortisol above the reflex threshold."),
		sleeps:     d("consolidations_total", "Completed sleep cycles."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range []*prometheus.Desc{
		c.drive, c.baseline, c.energy, c.fatigue, c.pain, c.samples, c.events,
		c.mutations, c.persistErr, c.denied, c.reflexes, c.sleeps,
	} {
		ch <- desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.State()
	st := c.src.Stats()

	for _, chem := range engine.Chemicals() {
		ch <- prometheus.MustNewConstMetric(c.drive, prometheus.GaugeValue, s.Chemicals[chem], chem.String())
		ch <- prometheus.MustNewConstMetric(c.baseline, prometheus.GaugeValue, s.Baselines[chem], chem.String())
	}
	ch <- prometheus.MustNewConstMetric(c.energy, prometheus.GaugeValue, s.Energy)
	ch <- prometheus.MustNewConstMetric(c.fatigue, prometheus.GaugeValue, s.Fatigue)
	ch <- prometheus.MustNewConstMetric(c.pain, prometheus.GaugeValue, s.Pain)
	ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(s.PlasticitySamples))
	ch <- prometheus.MustNewConstMetric(c.events, prometheus.GaugeValue, float64(s.EventCount))
	ch <- prometheus.MustNewConstMetric(c.mutations, prometheus.CounterValue, float64(st.Mutations))
	ch <- prometheus.MustNewConstMetric(c.persistErr, prometheus.CounterValue, float64(st.PersistFailures))
	ch <- prometheus.MustNewConstMetric(c.denied, prometheus.CounterValue, float64(st.EnergyDenied))
	ch <- prometheus.MustNewConstMetric(c.reflexes, prometheus.CounterValue, float64(st.Reflexes))
	ch <- prometheus.MustNewConstMetric(c.sleeps, prometheus.CounterValue, float64(st.Consolidations))
}

// NewRegistry returns a registry with the engine collector, the operation
// counters and the Go runtime collectors.
func NewRegistry(src Source) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(src),
		CheckpointOps,
		OracleCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
