package connection

import (
	"time"

	"github.com/unithub/unithub-ble/pkg/connector"
	"github.com/unithub/unithub-ble/pkg/metrics"
)

const (
	DefaultScanTimeout      = 10 * time.Second
	DefaultConnectTimeout   = 15 * time.Second
	DefaultDiscoveryTimeout = 10 * time.Second
	DefaultOperationTimeout = 5 * time.Second
)

type options struct {
	scanTimeout      time.Duration
	connectTimeout   time.Duration
	discoveryTimeout time.Duration
	operationTimeout time.Duration
	preferredMTU     int
	handler          StateHandler
	metrics          *metrics.Metrics
	now              func() time.Time
}

func defaultOptions() options {
	return options{
		scanTimeout:      DefaultScanTimeout,
		connectTimeout:   DefaultConnectTimeout,
		discoveryTimeout: DefaultDiscoveryTimeout,
		operationTimeout: DefaultOperationTimeout,
		preferredMTU:     connector.PreferredMTU,
		now:              time.Now,
	}
}

// Option configures a Manager.
type Option func(*options)

// WithScanTimeout sets the scan duration used when Scan is called with a zero timeout.
func WithScanTimeout(d time.Duration) Option {
	return func(o *options) { o.scanTimeout = d }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

func WithDiscoveryTimeout(d time.Duration) Option {
	return func(o *options) { o.discoveryTimeout = d }
}

// WithOperationTimeout bounds every characteristic read and write.
func WithOperationTimeout(d time.Duration) Option {
	return func(o *options) { o.operationTimeout = d }
}

func WithPreferredMTU(mtu int) Option {
	return func(o *options) { o.preferredMTU = mtu }
}

func WithStateHandler(h StateHandler) Option {
	return func(o *options) { o.handler = h }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces the source of first/last-seen timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
