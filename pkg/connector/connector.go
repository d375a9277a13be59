package connector

//go:generate mockgen -source connector.go -destination ../../mocks/transport.go -package mocks -mock_names Transport=Transport,Handle=Handle

import (
	"context"
	"time"
)

// DefaultMTU is the ATT MTU every BLE link starts with.
const DefaultMTU = 23

// PreferredMTU is requested when connecting. Peripherals may negotiate a smaller value.
const PreferredMTU = 517

// Advertisement is a single observation of a peripheral during a scan.
type Advertisement struct {
	DeviceID    string
	LocalName   string
	RSSI        *int
	Services    []string
	Connectable bool
	// ManufacturerData is passed through for diagnostics; the core does not interpret it.
	ManufacturerData []byte
}

// ConnectOptions controls link establishment.
type ConnectOptions struct {
	PreferredMTU int
	Timeout      time.Duration
}

// Handle identifies a live link returned by Transport.Connect.
type Handle interface {
	DeviceID() string
	// MTU returns the negotiated ATT MTU.
	MTU() int
}

// Property flags reported for a discovered characteristic.
type Property uint8

const (
	PropertyRead Property = 1 << iota
	PropertyWrite
	PropertyWriteWithoutResponse
	PropertyNotify
)

// CharacteristicInfo describes a characteristic found during discovery. UUID is in the form
// returned by protocol.NormalizeID.
type CharacteristicInfo struct {
	UUID       string
	Properties Property
}

// ServiceInfo describes a service found during discovery.
type ServiceInfo struct {
	UUID            string
	Characteristics []CharacteristicInfo
}

// Transport is the platform BLE radio. The core never talks to a radio except through this
// interface.
//
// Implementations must be thread safe, but callers never issue concurrent GATT operations on
// the same Handle.
type Transport interface {
	// Scan reports advertisements that list at least one of services (all advertisements if
	// services is empty) until ctx is done. The returned error is nil when the scan ended because
	// ctx was canceled or expired.
	Scan(ctx context.Context, services []string, handler func(Advertisement)) error

	// Connect establishes a link with deviceID. The link is not usable for GATT operations until
	// Discover has completed.
	Connect(ctx context.Context, deviceID string, opts ConnectOptions) (Handle, error)

	// Discover enumerates every service and characteristic on the link.
	Discover(ctx context.Context, h Handle) ([]ServiceInfo, error)

	// ReadCharacteristic returns the current value of char within service.
	ReadCharacteristic(ctx context.Context, h Handle, service, char string) ([]byte, error)

	// WriteCharacteristic sets the value of char within service.
	//
	// When withResponse is false the peripheral does not acknowledge the write, and a nil error
	// only means the value was queued.
	WriteCharacteristic(ctx context.Context, h Handle, service, char string, value []byte, withResponse bool) error

	// Disconnect releases the link. Repeated calls must be idempotent.
	Disconnect(ctx context.Context, h Handle) error
}
