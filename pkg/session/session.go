// Package session is the caller-facing surface of the Unit-Hub client.
//
// A Session owns a connection.Manager and a service.Client. It exposes the lifecycle state, the
// devices found by the last scan and a snapshot of everything read from the connected device.
// Successful reads are merged into the snapshot while the link is still held, so a snapshot
// never changes after Disconnect returns. Readers always receive deep copies.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/unithub/unithub-ble/internal/log"
	"github.com/unithub/unithub-ble/pkg/connection"
	"github.com/unithub/unithub-ble/pkg/connector"
	"github.com/unithub/unithub-ble/pkg/device"
	"github.com/unithub/unithub-ble/pkg/metrics"
	"github.com/unithub/unithub-ble/pkg/protocol"
	"github.com/unithub/unithub-ble/pkg/service"
)

// EventKind identifies what changed.
type EventKind int

const (
	EventState EventKind = iota
	EventDevices
	EventSnapshot
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventDevices:
		return "devices"
	case EventSnapshot:
		return "snapshot"
	}
	return "unknown"
}

// Event is published on the Events channel. State and Err are set for EventState.
type Event struct {
	Kind     EventKind
	State    connection.State
	DeviceID string
	Err      error
}

const DefaultEventBuffer = 32

type options struct {
	connection  []connection.Option
	service     []service.Option
	metrics     *metrics.Metrics
	eventBuffer int
	now         func() time.Time
}

type Option func(*options)

// WithConnectionOptions configures the underlying connection.Manager. A state handler passed
// here is replaced by the Session's own; subscribe to Events instead.
func WithConnectionOptions(opts ...connection.Option) Option {
	return func(o *options) { o.connection = append(o.connection, opts...) }
}

func WithServiceOptions(opts ...service.Option) Option {
	return func(o *options) { o.service = append(o.service, opts...) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithEventBuffer sets the capacity of the Events channel. Events are dropped when it is full.
func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Session is safe for concurrent use. Create one with New and release it with Close.
type Session struct {
	manager *connection.Manager
	client  *service.Client
	now     func() time.Time

	mu       sync.RWMutex
	devices  []device.Discovered
	snapshot *device.Snapshot
	events   chan Event
	closed   bool
}

// New returns a Session that drives transport.
func New(transport connector.Transport, opts ...Option) *Session {
	o := options{eventBuffer: DefaultEventBuffer, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Session{
		client: service.New(o.service...),
		now:    o.now,
		events: make(chan Event, max(o.eventBuffer, 0)),
	}
	connOpts := slices.Clone(o.connection)
	if o.metrics != nil {
		connOpts = append(connOpts, connection.WithMetrics(o.metrics))
	}
	connOpts = append(connOpts, connection.WithClock(o.now), connection.WithStateHandler(s.onTransition))
	s.manager = connection.New(transport, connOpts...)
	return s
}

// Close stops any scan, disconnects and closes the Events channel. The Session cannot be used
// afterwards.
func (s *Session) Close(ctx context.Context) error {
	err := s.manager.Close(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return err
}

// Events returns the channel on which state, device list and snapshot changes are published.
// Sends never block; a slow consumer misses events rather than stalling the Session.
func (s *Session) Events() <-chan Event {
	return s.events
}

// publish must be called with s.mu held.
func (s *Session) publish(e Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
		log.Debug("Dropping %s event, channel full", e.Kind)
	}
}

func (s *Session) onTransition(t connection.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t.To {
	case connection.StateConnecting:
		s.snapshot = &device.Snapshot{Device: s.lookup(t.DeviceID), Status: device.StatusConnecting}
	case connection.StateConnected:
		if d, ok := s.manager.Device(); ok {
			if s.snapshot == nil || s.snapshot.Device.ID != d.ID {
				s.snapshot = &device.Snapshot{Device: d}
			}
			s.snapshot.Status = device.StatusConnected
		}
	case connection.StateFailed:
		if s.snapshot != nil {
			s.snapshot.Status = device.StatusFailed
		}
	case connection.StateIdle:
		// The link is released only after in-flight operations have settled.
		if t.From == connection.StateDisconnecting {
			s.snapshot = nil
		}
	}
	s.publish(Event{Kind: EventState, State: t.To, DeviceID: t.DeviceID, Err: t.Err})
}

// lookup must be called with s.mu held.
func (s *Session) lookup(id string) device.Discovered {
	for _, d := range s.devices {
		if d.ID == id {
			return d.Clone()
		}
	}
	return device.Discovered{ID: id, Name: device.DefaultName}
}

func (s *Session) State() connection.State {
	return s.manager.State()
}

func (s *Session) Scanning() bool {
	return s.manager.State() == connection.StateScanning
}

func (s *Session) Connected() bool {
	return s.manager.State() == connection.StateConnected
}

// Devices returns the devices found by the most recent scan.
func (s *Session) Devices() []device.Discovered {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]device.Discovered, len(s.devices))
	for i, d := range s.devices {
		out[i] = d.Clone()
	}
	return out
}

// Snapshot returns a copy of the current device snapshot, or nil without a connection.
func (s *Session) Snapshot() *device.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

// Scan discards the current device list and scans for timeout (the default when zero). The
// list is replaced with the results once the scan ends.
func (s *Session) Scan(ctx context.Context, timeout time.Duration) ([]device.Discovered, error) {
	if s.Connected() {
		return nil, protocol.Wrap("scan", protocol.ErrBusy, errors.New("disconnect before scanning"))
	}
	s.ClearDevices()
	found, err := s.manager.Scan(ctx, timeout)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.devices = found
	s.publish(Event{Kind: EventDevices})
	s.mu.Unlock()
	return s.Devices(), nil
}

func (s *Session) StopScan() {
	s.manager.StopScan()
}

// ClearDevices empties the device list.
func (s *Session) ClearDevices() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.devices == nil {
		return
	}
	s.devices = nil
	s.publish(Event{Kind: EventDevices})
}

// Connect connects to deviceID, stopping any active scan. A different connected device is
// disconnected first; connecting to the current device again does nothing.
func (s *Session) Connect(ctx context.Context, deviceID string) error {
	return s.manager.Connect(ctx, deviceID)
}

// Disconnect releases the connection. The snapshot is cleared before it returns.
func (s *Session) Disconnect(ctx context.Context) error {
	return s.manager.Disconnect(ctx)
}

// merge folds rec into the snapshot of the device behind l. It runs while l is held.
func (s *Session) merge(l *connection.Link, rec device.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil || s.snapshot.Device.ID != l.DeviceID() || s.snapshot.Status != device.StatusConnected {
		return
	}
	s.snapshot = s.snapshot.With(rec, s.now())
	s.publish(Event{Kind: EventSnapshot, DeviceID: l.DeviceID()})
}

// ReadService reads every readable characteristic of id and merges the result into the
// snapshot.
func (s *Session) ReadService(ctx context.Context, id protocol.ServiceID) (device.Record, error) {
	var rec device.Record
	err := s.manager.Do(ctx, func(l *connection.Link) error {
		var err error
		if rec, err = s.client.Read(ctx, l, id); err != nil {
			return err
		}
		s.merge(l, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// WriteService writes the supplied fields of value, a record or patch of service id. The
// snapshot is not updated; read the service again to observe the result.
func (s *Session) WriteService(ctx context.Context, id protocol.ServiceID, value any) error {
	return s.manager.Do(ctx, func(l *connection.Link) error {
		return s.client.Write(ctx, l, id, value)
	})
}

// Refresh reads every service the connected device exposes. Services that fail are reported
// together; the others are still merged.
func (s *Session) Refresh(ctx context.Context) error {
	return s.manager.Do(ctx, func(l *connection.Link) error {
		var failures []error
		for _, svc := range protocol.Services() {
			if !l.HasService(svc.ID) {
				continue
			}
			rec, err := s.client.Read(ctx, l, svc.ID)
			if err != nil {
				if errors.Is(err, protocol.ErrNotConnected) || ctx.Err() != nil {
					return err
				}
				failures = append(failures, err)
				continue
			}
			s.merge(l, rec)
		}
		return errors.Join(failures...)
	})
}

// TriggerInstantSend asks the device to send a LoRaWAN uplink now.
func (s *Session) TriggerInstantSend(ctx context.Context) error {
	return s.manager.Do(ctx, func(l *connection.Link) error {
		return s.client.TriggerInstantSend(ctx, l)
	})
}

// FactoryReset restores the device defaults.
func (s *Session) FactoryReset(ctx context.Context) error {
	return s.manager.Do(ctx, func(l *connection.Link) error {
		return s.client.FactoryReset(ctx, l)
	})
}

func (s *Session) StartOTA(ctx context.Context) error {
	return s.manager.Do(ctx, func(l *connection.Link) error {
		return s.client.StartOTA(ctx, l)
	})
}

// UploadFirmware streams image to the device. The link is held for the whole upload, so a
// Disconnect waits for it to finish.
func (s *Session) UploadFirmware(ctx context.Context, image []byte, progress service.Progress) error {
	return s.manager.Do(ctx, func(l *connection.Link) error {
		return s.client.UploadFirmware(ctx, l, image, progress)
	})
}
