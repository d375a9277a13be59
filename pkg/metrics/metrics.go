// Package metrics exports Prometheus counters for radio activity.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unithub/unithub-ble/pkg/protocol"
)

const namespace = "unithub"

// Use buckets ranging from 50 ms to 30 seconds.
var latencyBuckets = []float64{0.05, 0.25, 1, 2.5, 5, 10, 15, 30}

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	scans       *prometheus.CounterVec
	discovered  prometheus.Counter
	connects    *prometheus.CounterVec
	connectTime prometheus.Histogram
	gatt        *prometheus.CounterVec
	state       *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ble",
			Name:      "scans_total",
			Help:      "Count of completed scans, labeled by result",
		}, []string{"result"}),
		discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ble",
			Name:      "discovered_devices_total",
			Help:      "Count of distinct devices returned by scans",
		}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ble",
			Name:      "connects_total",
			Help:      "Count of connection attempts, labeled by result",
		}, []string{"result"}),
		connectTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ble",
			Name:      "connect_duration_seconds",
			Help:      "Time to connect and discover services, in seconds",
			Buckets:   latencyBuckets,
		}),
		gatt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gatt",
			Name:      "operations_total",
			Help:      "Count of characteristic operations, labeled by operation (read or write), characteristic and result",
		}, []string{"op", "service", "characteristic", "result"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ble",
			Name:      "connection_state",
			Help:      "Set to 1 for the current connection manager state",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.scans, m.discovered, m.connects, m.connectTime, m.gatt, m.state)
	}
	return m
}

// Result converts err into a short label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, protocol.ErrTransportUnavailable):
		return "transport_unavailable"
	case errors.Is(err, protocol.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, protocol.ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, protocol.ErrWriteRejected):
		return "rejected"
	case errors.Is(err, protocol.ErrInvalidValue):
		return "invalid"
	}
	return "error"
}

func (m *Metrics) ObserveScan(found int, err error) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(Result(err)).Inc()
	if err == nil {
		m.discovered.Add(float64(found))
	}
}

func (m *Metrics) ObserveConnect(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(Result(err)).Inc()
	if err == nil {
		m.connectTime.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveGATT(op string, service protocol.ServiceID, char protocol.CharacteristicID, err error) {
	if m == nil {
		return
	}
	m.gatt.WithLabelValues(op, string(service), string(char), Result(err)).Inc()
}

// SetState marks state as the current one among states.
func (m *Metrics) SetState(state string, states []string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

// Handler serves the collectors registered with g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
