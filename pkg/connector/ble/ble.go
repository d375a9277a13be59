// Package ble implements connector.Transport on top of github.com/go-ble/ble. The HCI device is
// used on Linux and CoreBluetooth on macOS; other platforms report
// protocol.ErrTransportUnavailable.
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"

	"github.com/unithub/unithub-ble/internal/log"
	"github.com/unithub/unithub-ble/pkg/connector"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

var ErrAdapterInvalidID = protocol.NewError("the bluetooth adapter ID is invalid", false, false)

const maxBLEMTUSize = 517

// Adapter is a connector.Transport backed by the host Bluetooth controller.
type Adapter struct {
	id    string
	open  func(id string) (Radio, error)
	mu    sync.Mutex
	radio Radio
}

// NewAdapter returns an Adapter for the controller named by id (for example "hci1" or "1" on
// Linux). An empty id selects the default controller. The controller is opened on first use.
func NewAdapter(id string) *Adapter {
	return &Adapter{id: id, open: newRadio}
}

// NewAdapterWithRadio returns an Adapter that uses an already opened radio.
func NewAdapterWithRadio(radio Radio) *Adapter {
	return &Adapter{radio: radio}
}

func (a *Adapter) device() (Radio, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	// Multiple HCI sockets on the same controller fail on Linux, so the radio is shared by every
	// scan and connection made through this adapter.
	if a.radio != nil {
		log.Debug("Reusing existing BLE device")
		return a.radio, nil
	}
	log.Debug("Creating new BLE adapter")
	radio, err := a.open(a.id)
	if err != nil {
		if errors.Is(err, ErrAdapterInvalidID) {
			return nil, err
		}
		return nil, protocol.Wrap("open adapter", protocol.ErrTransportUnavailable, err)
	}
	a.radio = radio
	return radio, nil
}

// Open initializes the controller without scanning or connecting. Other methods open it on
// demand; Open lets callers report adapter problems early.
func (a *Adapter) Open() error {
	_, err := a.device()
	return err
}

// Close stops the controller. A later operation reopens it.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.radio == nil {
		return nil
	}
	radio := a.radio
	a.radio = nil
	if err := radio.Stop(); err != nil {
		return fmt.Errorf("ble: failed to stop device: %s", err)
	}
	log.Debug("Closed BLE adapter")
	return nil
}

func (a *Adapter) Scan(ctx context.Context, services []string, handler func(connector.Advertisement)) error {
	radio, err := a.device()
	if err != nil {
		return err
	}
	filter := make([]string, 0, len(services))
	for _, s := range services {
		if id, err := protocol.NormalizeID(s); err == nil {
			filter = append(filter, id)
		}
	}

	fn := func(adv ble.Advertisement) {
		out := advertisementFrom(adv)
		if len(filter) > 0 && !advertises(out.Services, filter) {
			return
		}
		handler(out)
	}

	// device.Scan() only returns once ctx is done, and always with an error on macOS.
	err = radio.Scan(ctx, true, fn)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (a *Adapter) Connect(ctx context.Context, deviceID string, opts connector.ConnectOptions) (connector.Handle, error) {
	radio, err := a.device()
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	log.Debug("Dialing to %s...", deviceID)
	client, err := radio.Dial(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to dial %s: %w", deviceID, err)
	}

	l := &link{deviceID: deviceID, client: client, mtu: connector.DefaultMTU}
	if opts.PreferredMTU > connector.DefaultMTU {
		mtu, err := client.ExchangeMTU(min(opts.PreferredMTU, maxBLEMTUSize))
		if err != nil {
			log.Warning("ble: failed to exchange MTU: %s", err)
		} else {
			l.mtu = mtu
			log.Debug("MTU size: %d", mtu)
		}
	}
	return l, nil
}

func (a *Adapter) Discover(ctx context.Context, h connector.Handle) ([]connector.ServiceInfo, error) {
	l, err := asLink(h)
	if err != nil {
		return nil, err
	}
	return call(ctx, l.discover)
}

func (a *Adapter) ReadCharacteristic(ctx context.Context, h connector.Handle, service, char string) ([]byte, error) {
	l, err := asLink(h)
	if err != nil {
		return nil, err
	}
	c, err := l.characteristic(service, char)
	if err != nil {
		return nil, err
	}
	value, err := call(ctx, func() ([]byte, error) { return l.client.ReadCharacteristic(c) })
	if err != nil {
		return nil, err
	}
	log.Debug("RX %s/%s: %02x", service, char, value)
	return value, nil
}

func (a *Adapter) WriteCharacteristic(ctx context.Context, h connector.Handle, service, char string, value []byte, withResponse bool) error {
	l, err := asLink(h)
	if err != nil {
		return err
	}
	c, err := l.characteristic(service, char)
	if err != nil {
		return err
	}
	log.Debug("TX %s/%s: %02x", service, char, value)
	_, err = call(ctx, func() (struct{}, error) {
		return struct{}{}, l.client.WriteCharacteristic(c, value, !withResponse)
	})
	return err
}

func (a *Adapter) Disconnect(_ context.Context, h connector.Handle) error {
	l, err := asLink(h)
	if err != nil {
		return err
	}
	return l.close()
}

// call runs a blocking go-ble operation, giving up when ctx is done. go-ble has no
// cancellation of its own, so an abandoned call keeps running in the background until the
// controller answers or the link drops.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func advertisementFrom(a ble.Advertisement) connector.Advertisement {
	rssi := a.RSSI()
	services := make([]string, 0, len(a.Services()))
	for _, u := range a.Services() {
		services = append(services, uuidString(u))
	}
	return connector.Advertisement{
		DeviceID:         a.Addr().String(),
		LocalName:        a.LocalName(),
		RSSI:             &rssi,
		Services:         services,
		Connectable:      a.Connectable(),
		ManufacturerData: a.ManufacturerData(),
	}
}

func advertises(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
