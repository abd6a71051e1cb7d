package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"
)

// Metrics holds the run counters. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	IndicatorsExtracted *prometheus.CounterVec
	RowsStored          *prometheus.CounterVec
	HeaderMatches       prometheus.Counter
	PhaseDuration       *prometheus.HistogramVec
}

// NewMetrics registers the run metrics on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		IndicatorsExtracted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emlscan_indicators_extracted_total",
				Help: "Indicators found in the email document",
			},
			[]string{"kind"},
		),
		RowsStored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emlscan_rows_stored_total",
				Help: "Rows inserted into the indicator tables",
			},
			[]string{"table"},
		),
		HeaderMatches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "emlscan_header_matches_total",
				Help: "Header search matches",
			},
		),
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emlscan_phase_duration_seconds",
				Help:    "Time spent per processing phase",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"phase"},
		),
	}
}

func (m *Metrics) countIndicators(ind Indicators) {
	if m == nil {
		return
	}
	m.IndicatorsExtracted.WithLabelValues(KindIPv4).Add(float64(len(ind.IPv4)))
	m.IndicatorsExtracted.WithLabelValues(KindIPv6).Add(float64(len(ind.IPv6)))
	m.IndicatorsExtracted.WithLabelValues(KindDomain).Add(float64(len(ind.Domains)))
}

func (m *Metrics) countStored(table string) {
	if m == nil {
		return
	}
	m.RowsStored.WithLabelValues(table).Inc()
}

func (m *Metrics) countHeaderMatches(n int) {
	if m == nil {
		return
	}
	m.HeaderMatches.Add(float64(n))
}

func (m *Metrics) observePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// WriteTextfile writes the registry in the text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return eris.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}
