// Package connection owns the single BLE link to a Unit-Hub device.
//
// A Manager runs the lifecycle state machine
//
//	idle -> scanning -> idle
//	idle -> connecting -> connected -> disconnecting -> idle
//	connecting -> failed -> idle
//
// Scan, Connect and Disconnect never overlap: a Connect cancels an active scan and waits for it
// to finish, and a Scan requested while another lifecycle operation is running fails with
// protocol.ErrBusy. Characteristic access goes through Do, which serializes GATT operations on
// the link; Disconnect waits for the operation in flight before releasing the link.
package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unithub/unithub-ble/internal/log"
	"github.com/unithub/unithub-ble/pkg/connector"
	"github.com/unithub/unithub-ble/pkg/device"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

// Manager is safe for concurrent use.
type Manager struct {
	transport connector.Transport
	opts      options

	lifecycle sync.Mutex // held by Connect and Disconnect, and briefly when a scan starts
	gatt      sync.Mutex // held for the duration of Do

	mu         sync.Mutex
	state      State
	handle     connector.Handle
	connected  device.Discovered
	profile    profile
	seen       map[string]device.Discovered
	scanCancel context.CancelFunc
	scanDone   chan struct{}
}

// New returns a Manager that drives transport.
func New(transport connector.Transport, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	m := &Manager{
		transport: transport,
		opts:      o,
		seen:      make(map[string]device.Discovered),
	}
	m.opts.metrics.SetState(StateIdle.String(), stateNames)
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Device returns the connected device, if any.
func (m *Manager) Device() (device.Discovered, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return device.Discovered{}, false
	}
	return m.connected.Clone(), true
}

// transition must be called without m.mu held.
func (m *Manager) transition(to State, deviceID string, cause error) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()
	m.notify(from, to, deviceID, cause)
}

func (m *Manager) notify(from, to State, deviceID string, cause error) {
	if from == to {
		return
	}
	log.Debug("Connection state %s -> %s", from, to)
	m.opts.metrics.SetState(to.String(), stateNames)
	if m.opts.handler != nil {
		m.opts.handler(Transition{From: from, To: to, DeviceID: deviceID, Err: cause})
	}
}

// Scan listens for Unit-Hub advertisements for timeout (the configured default when timeout is
// zero) or until StopScan is called, and returns every device seen. Repeated advertisements from
// the same device are merged, keeping the most recent values. A transport failure discards the
// partial results.
func (m *Manager) Scan(ctx context.Context, timeout time.Duration) ([]device.Discovered, error) {
	if timeout <= 0 {
		timeout = m.opts.scanTimeout
	}
	if !m.lifecycle.TryLock() {
		return nil, protocol.Wrap("scan", protocol.ErrBusy, nil)
	}
	m.mu.Lock()
	if m.state != StateIdle && m.state != StateFailed {
		state := m.state
		m.mu.Unlock()
		m.lifecycle.Unlock()
		return nil, protocol.Wrap("scan", protocol.ErrBusy, errors.New("manager is "+state.String()))
	}
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	done := make(chan struct{})
	from := m.state
	m.state = StateScanning
	m.scanCancel = cancel
	m.scanDone = done
	m.mu.Unlock()
	m.lifecycle.Unlock()
	m.notify(from, StateScanning, "", nil)

	var (
		resultsMu sync.Mutex
		finished  bool
		order     []string
		found     = make(map[string]*device.Discovered)
	)
	handler := func(a connector.Advertisement) {
		now := m.opts.now()
		d := device.Discovered{
			ID:          a.DeviceID,
			Name:        a.LocalName,
			RSSI:        a.RSSI,
			Services:    device.ServiceSet(a.Services),
			Connectable: a.Connectable,
			FirstSeen:   now,
			LastSeen:    now,
		}
		if d.Name == "" {
			d.Name = device.DefaultName
		}

		resultsMu.Lock()
		defer resultsMu.Unlock()
		if finished {
			return
		}
		if existing, ok := found[d.ID]; ok {
			existing.Update(d)
			return
		}
		log.Debug("Discovered %s (%s)", d.ID, d.Name)
		order = append(order, d.ID)
		found[d.ID] = &d
	}

	log.Info("Scanning for Unit-Hub devices (%s)", timeout)
	err := m.transport.Scan(scanCtx, []string{string(protocol.RootService)}, handler)
	if err == nil {
		// Transports may return before the deadline; a scan always lasts the full timeout
		// unless stopped.
		<-scanCtx.Done()
	}
	cancel()

	resultsMu.Lock()
	finished = true
	results := make([]device.Discovered, 0, len(order))
	for _, id := range order {
		results = append(results, found[id].Clone())
	}
	resultsMu.Unlock()

	m.mu.Lock()
	m.scanCancel = nil
	m.scanDone = nil
	if err == nil {
		for _, d := range results {
			m.seen[d.ID] = d
		}
	}
	m.mu.Unlock()
	m.transition(StateIdle, "", err)
	close(done)

	if err != nil {
		err = mapTransportError("scan", protocol.ErrScanFailed, err)
		m.opts.metrics.ObserveScan(0, err)
		log.Warning("Scan failed: %s", err)
		return nil, err
	}
	if ctx.Err() != nil {
		m.opts.metrics.ObserveScan(0, ctx.Err())
		return nil, ctx.Err()
	}
	m.opts.metrics.ObserveScan(len(results), nil)
	log.Info("Scan finished, %d device(s) found", len(results))
	return results, nil
}

// StopScan ends an active scan early. The pending Scan call returns the devices seen so far.
func (m *Manager) StopScan() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanCancel != nil {
		m.scanCancel()
	}
}

func (m *Manager) stopScanAndWait() {
	m.mu.Lock()
	cancel, done := m.scanCancel, m.scanDone
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	log.Debug("Stopping scan before connecting")
	cancel()
	<-done
}

func mapTransportError(op string, kind error, err error) error {
	if errors.Is(err, protocol.ErrTransportUnavailable) {
		var opErr *protocol.OperationError
		if errors.As(err, &opErr) {
			return err
		}
		return protocol.Wrap(op, protocol.ErrTransportUnavailable, err)
	}
	return protocol.Wrap(op, kind, err)
}

// Connect establishes a link with deviceID and discovers its services. An active scan is stopped
// first. If a different device is connected it is disconnected before dialing; connecting to the
// device that is already connected succeeds without touching the link. Failures are not retried.
func (m *Manager) Connect(ctx context.Context, deviceID string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.stopScanAndWait()

	m.mu.Lock()
	if m.handle != nil && m.connected.ID == deviceID && m.state == StateConnected {
		m.mu.Unlock()
		log.Debug("Already connected to %s", deviceID)
		return nil
	}
	teardown := m.handle != nil
	m.mu.Unlock()
	if teardown {
		log.Info("Disconnecting from current device before connecting to %s", deviceID)
		m.disconnect(ctx)
	}

	m.mu.Lock()
	target, ok := m.seen[deviceID]
	m.mu.Unlock()
	if !ok {
		target = device.Discovered{ID: deviceID, Name: device.DefaultName}
	}

	m.transition(StateConnecting, deviceID, nil)
	start := time.Now()
	h, services, err := m.dial(ctx, deviceID)
	if err != nil {
		err = mapTransportError("connect", protocol.ErrConnectFailed, err)
		m.opts.metrics.ObserveConnect(time.Since(start), err)
		log.Warning("Connection to %s failed: %s", deviceID, err)
		m.transition(StateFailed, deviceID, err)
		m.transition(StateIdle, deviceID, nil)
		return err
	}

	m.mu.Lock()
	m.handle = h
	m.connected = target.Clone()
	m.profile = newProfile(services)
	m.mu.Unlock()
	m.opts.metrics.ObserveConnect(time.Since(start), nil)
	log.Info("Connected to %s (MTU %d, %d services)", deviceID, h.MTU(), len(services))
	m.transition(StateConnected, deviceID, nil)
	return nil
}

func (m *Manager) dial(ctx context.Context, deviceID string) (connector.Handle, []connector.ServiceInfo, error) {
	connectCtx, cancel := context.WithTimeout(ctx, m.opts.connectTimeout)
	h, err := m.transport.Connect(connectCtx, deviceID, connector.ConnectOptions{
		PreferredMTU: m.opts.preferredMTU,
		Timeout:      m.opts.connectTimeout,
	})
	cancel()
	if err != nil {
		return nil, nil, err
	}

	discoverCtx, cancel := context.WithTimeout(ctx, m.opts.discoveryTimeout)
	services, err := m.transport.Discover(discoverCtx, h)
	cancel()
	if err != nil {
		if derr := m.transport.Disconnect(context.Background(), h); derr != nil {
			log.Warning("Failed to release link after discovery error: %s", derr)
		}
		return nil, nil, err
	}
	return h, services, nil
}

// Disconnect releases the link after the GATT operation in flight, if any, has completed.
// Transport errors are logged rather than returned. Without a connection it does nothing.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.disconnect(ctx)
	return nil
}

func (m *Manager) disconnect(ctx context.Context) {
	m.mu.Lock()
	h := m.handle
	if h == nil {
		m.mu.Unlock()
		return
	}
	id := m.connected.ID
	m.mu.Unlock()
	m.transition(StateDisconnecting, id, nil)

	m.gatt.Lock()
	m.mu.Lock()
	m.handle = nil
	m.connected = device.Discovered{}
	m.profile = profile{}
	m.mu.Unlock()
	m.gatt.Unlock()

	if err := m.transport.Disconnect(ctx, h); err != nil {
		log.Warning("Error while disconnecting from %s: %s", id, err)
	}
	log.Info("Disconnected from %s", id)
	m.transition(StateIdle, id, nil)
}

// Close stops any scan and releases the link.
func (m *Manager) Close(ctx context.Context) error {
	m.StopScan()
	return m.Disconnect(ctx)
}

// Do runs fn with exclusive access to the live link. The Link must not be retained after fn
// returns. Without a connection Do fails with protocol.ErrNotConnected and fn is not called.
func (m *Manager) Do(ctx context.Context, fn func(*Link) error) error {
	m.gatt.Lock()
	defer m.gatt.Unlock()

	m.mu.Lock()
	h, p, state := m.handle, m.profile, m.state
	m.mu.Unlock()
	if h == nil || state != StateConnected {
		return protocol.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := &Link{manager: m, handle: h, profile: p}
	defer l.release()
	return fn(l)
}
