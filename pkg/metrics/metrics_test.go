package metrics

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unithub/unithub-ble/pkg/protocol"
)

func TestResult(t *testing.T) {
	cases := map[string]error{
		"ok":                    nil,
		"transport_unavailable": protocol.ErrTransportUnavailable,
		"malformed":             fmt.Errorf("decode: %w", protocol.ErrMalformedPayload),
		"rejected":              protocol.Wrap("write", protocol.ErrWriteRejected, errors.New("att")),
		"error":                 errors.New("other"),
	}
	for want, err := range cases {
		if got := Result(err); got != want {
			t.Errorf("Result(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveScan(3, nil)
	m.ObserveScan(0, protocol.ErrScanFailed)
	m.ObserveConnect(2*time.Second, nil)
	m.ObserveGATT("read", protocol.ServiceMeasurementDurations, protocol.CharGasDuration, nil)
	m.ObserveGATT("read", protocol.ServiceMeasurementDurations, protocol.CharGasDuration, nil)
	m.SetState("connected", []string{"idle", "connected"})

	if v := testutil.ToFloat64(m.discovered); v != 3 {
		t.Errorf("discovered = %v", v)
	}
	if v := testutil.ToFloat64(m.gatt.WithLabelValues("read", "1810", "2A56", "ok")); v != 2 {
		t.Errorf("gatt reads = %v", v)
	}
	if v := testutil.ToFloat64(m.state.WithLabelValues("idle")); v != 0 {
		t.Errorf("idle gauge = %v", v)
	}

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rr.Body.String(), `unithub_ble_scans_total{result="ok"} 1`) {
		t.Errorf("scan counter not exported:\n%s", rr.Body.String())
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveScan(1, nil)
	m.ObserveConnect(time.Second, nil)
	m.ObserveGATT("write", "1810", "2A56", nil)
	m.SetState("idle", nil)
}
