package ble

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"

	"github.com/unithub/unithub-ble/internal/log"
	"github.com/unithub/unithub-ble/pkg/connector"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

type link struct {
	deviceID string
	client   Client
	mtu      int

	mu     sync.Mutex
	closed bool
	chars  map[string]*ble.Characteristic
}

func (l *link) DeviceID() string { return l.deviceID }
func (l *link) MTU() int { return l.mtu }

func asLink(h connector.Handle) (*link, error) {
	l, ok := h.(*link)
	if !ok || l == nil {
		return nil, fmt.Errorf("ble: handle %T was not created by this adapter", h)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errors.New("ble: link is closed")
	}
	return l, nil
}

func charKey(service, char string) string {
	s, err := protocol.NormalizeID(service)
	if err != nil {
		s = strings.ToUpper(service)
	}
	c, err := protocol.NormalizeID(char)
	if err != nil {
		c = strings.ToUpper(char)
	}
	return s + "/" + c
}

func (l *link) discover() ([]connector.ServiceInfo, error) {
	log.Debug("Discovering services %s...", l.deviceID)
	services, err := l.client.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to enumerate device services: %w", err)
	}

	chars := make(map[string]*ble.Characteristic)
	out := make([]connector.ServiceInfo, 0, len(services))
	for _, s := range services {
		info := connector.ServiceInfo{UUID: uuidString(s.UUID)}
		characteristics, err := l.client.DiscoverCharacteristics(nil, s)
		if err != nil {
			return nil, fmt.Errorf("ble: failed to discover service characteristics: %w", err)
		}
		for _, c := range characteristics {
			if _, err := l.client.DiscoverDescriptors(nil, c); err != nil {
				log.Warning("ble: couldn't fetch descriptors of %s: %s", uuidString(c.UUID), err)
			}
			id := uuidString(c.UUID)
			chars[charKey(info.UUID, id)] = c
			info.Characteristics = append(info.Characteristics, connector.CharacteristicInfo{
				UUID:       id,
				Properties: properties(c.Property),
			})
		}
		out = append(out, info)
	}

	l.mu.Lock()
	l.chars = chars
	l.mu.Unlock()
	return out, nil
}

func (l *link) characteristic(service, char string) (*ble.Characteristic, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.chars[charKey(service, char)]
	if !ok {
		return nil, fmt.Errorf("ble: characteristic %s/%s not discovered", service, char)
	}
	return c, nil
}

func (l *link) close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	err1 := l.client.ClearSubscriptions()
	err2 := l.client.CancelConnection()
	return errors.Join(err1, err2)
}

func properties(p ble.Property) connector.Property {
	var out connector.Property
	if p&ble.CharRead != 0 {
		out |= connector.PropertyRead
	}
	if p&ble.CharWrite != 0 {
		out |= connector.PropertyWrite
	}
	if p&ble.CharWriteNR != 0 {
		out |= connector.PropertyWriteWithoutResponse
	}
	if p&ble.CharNotify != 0 {
		out |= connector.PropertyNotify
	}
	return out
}

// uuidString renders a go-ble UUID (stored little-endian) in the form accepted by
// protocol.NormalizeID, collapsing Bluetooth base UUIDs to four hex digits.
func uuidString(u ble.UUID) string {
	switch len(u) {
	case 2:
		return fmt.Sprintf("%04X", binary.LittleEndian.Uint16(u))
	case 16:
		b := ble.Reverse(u)
		s := fmt.Sprintf("%X-%X-%X-%X-%X", []byte(b[0:4]), []byte(b[4:6]), []byte(b[6:8]), []byte(b[8:10]), []byte(b[10:16]))
		if id, err := protocol.NormalizeID(s); err == nil {
			return id
		}
		return s
	}
	return strings.ToUpper(u.String())
}
