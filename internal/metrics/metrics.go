// Package metrics exposes Prometheus instrumentation for the address service.
package metrics

import (
	"errors"
	"net/http"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ipam"

type Metrics struct {
	Allocations       *prometheus.CounterVec
	Deallocations     *prometheus.CounterVec
	DiscoveryScans    *prometheus.CounterVec
	DiscoveryDuration *prometheus.HistogramVec
	DiscoveredDevices prometheus.Gauge
	Conflicts         *prometheus.GaugeVec
}

// New registers the service metrics on reg. utilization, when set, backs the
// ipam_utilization_ratio gauge and is evaluated on every scrape.
func New(reg prometheus.Registerer, utilization func() float64) *Metrics {
	m := &Metrics{
		Allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Address allocation attempts by kind and result.",
		}, []string{"kind", "result"}),
		Deallocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deallocations_total",
			Help:      "Address release attempts by result.",
		}, []string{"result"}),
		DiscoveryScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_scans_total",
			Help:      "Discovery scans by method and result.",
		}, []string{"method", "result"}),
		DiscoveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovery_duration_seconds",
			Help:      "Wall time of completed discovery scans.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"method"}),
		DiscoveredDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovered_devices",
			Help:      "Devices found by the most recent discovery scan.",
		}),
		Conflicts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conflicts",
			Help:      "Conflicts found by the most recent reconciliation, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.Allocations,
		m.Deallocations,
		m.DiscoveryScans,
		m.DiscoveryDuration,
		m.DiscoveredDevices,
		m.Conflicts,
	)
	if utilization != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "utilization_ratio",
			Help:      "Allocated share of all host addresses, from 0 to 1.",
		}, utilization))
	}
	return m
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrExhausted):
		return "exhausted"
	case errors.Is(err, domain.ErrAlreadyActive), errors.Is(err, domain.ErrNotActive):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidTarget):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	}
	return "error"
}
