package connection

import (
	"context"
	"sync/atomic"

	"github.com/unithub/unithub-ble/pkg/connector"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

// profile indexes the services discovered on a link by normalized id.
type profile struct {
	services []connector.ServiceInfo
	chars    map[protocol.ServiceID]map[protocol.CharacteristicID]connector.Property
}

func newProfile(services []connector.ServiceInfo) profile {
	p := profile{chars: make(map[protocol.ServiceID]map[protocol.CharacteristicID]connector.Property)}
	for _, s := range services {
		sid, err := protocol.NormalizeID(s.UUID)
		if err != nil {
			continue
		}
		info := connector.ServiceInfo{UUID: sid}
		chars := make(map[protocol.CharacteristicID]connector.Property)
		for _, c := range s.Characteristics {
			cid, err := protocol.NormalizeID(c.UUID)
			if err != nil {
				continue
			}
			chars[protocol.CharacteristicID(cid)] = c.Properties
			info.Characteristics = append(info.Characteristics, connector.CharacteristicInfo{UUID: cid, Properties: c.Properties})
		}
		p.chars[protocol.ServiceID(sid)] = chars
		p.services = append(p.services, info)
	}
	return p
}

// Link is a borrowed view of the live connection, valid only inside the function passed to
// Manager.Do.
type Link struct {
	manager  *Manager
	handle   connector.Handle
	profile  profile
	released atomic.Bool
}

func (l *Link) release() {
	l.released.Store(true)
}

func (l *Link) DeviceID() string {
	return l.handle.DeviceID()
}

// MTU returns the negotiated ATT MTU.
func (l *Link) MTU() int {
	return l.handle.MTU()
}

// Services returns the discovered profile with normalized identifiers.
func (l *Link) Services() []connector.ServiceInfo {
	out := make([]connector.ServiceInfo, len(l.profile.services))
	copy(out, l.profile.services)
	return out
}

func (l *Link) HasService(service protocol.ServiceID) bool {
	_, ok := l.profile.chars[service]
	return ok
}

func (l *Link) HasCharacteristic(service protocol.ServiceID, char protocol.CharacteristicID) bool {
	_, ok := l.profile.chars[service][char]
	return ok
}

// Read returns the raw value of a characteristic. Errors from the transport are returned
// unmapped so the caller can classify them.
func (l *Link) Read(ctx context.Context, service protocol.ServiceID, char protocol.CharacteristicID) ([]byte, error) {
	if l.released.Load() {
		return nil, protocol.ErrNotConnected
	}
	opCtx, cancel := context.WithTimeout(ctx, l.manager.opts.operationTimeout)
	defer cancel()
	value, err := l.manager.transport.ReadCharacteristic(opCtx, l.handle, string(service), string(char))
	l.manager.opts.metrics.ObserveGATT("read", service, char, err)
	return value, err
}

// Write sets the raw value of a characteristic.
func (l *Link) Write(ctx context.Context, service protocol.ServiceID, char protocol.CharacteristicID, value []byte, withResponse bool) error {
	if l.released.Load() {
		return protocol.ErrNotConnected
	}
	opCtx, cancel := context.WithTimeout(ctx, l.manager.opts.operationTimeout)
	defer cancel()
	err := l.manager.transport.WriteCharacteristic(opCtx, l.handle, string(service), string(char), value, withResponse)
	l.manager.opts.metrics.ObserveGATT("write", service, char, err)
	return err
}
