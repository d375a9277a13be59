package ble

import (
	"context"

	"github.com/go-ble/ble"
)

// Radio is the host controller as seen by Adapter.
type Radio interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, address string) (Client, error)
	Stop() error
}

// Client is the subset of ble.Client used by a live link.
type Client interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	ExchangeMTU(rxMTU int) (txMTU int, err error)
	ClearSubscriptions() error
	CancelConnection() error
}

// radio adapts a ble.Device to Radio.
type radio struct {
	device ble.Device
}

func (r radio) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return r.device.Scan(ctx, allowDup, h)
}

func (r radio) Dial(ctx context.Context, address string) (Client, error) {
	return r.device.Dial(ctx, ble.NewAddr(address))
}

func (r radio) Stop() error {
	return r.device.Stop()
}
