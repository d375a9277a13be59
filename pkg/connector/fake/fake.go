// Package fake provides an in-memory connector.Transport. Peripherals are described as plain
// maps of characteristic values, and every operation can be made to fail.
package fake

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/unithub/unithub-ble/pkg/connector"
)

// ErrATT is returned by default for injected read and write failures.
var ErrATT = errors.New("fake: att error 0x0e")

// Peripheral is a simulated device.
type Peripheral struct {
	ID          string
	Name        string
	RSSI        *int
	Connectable bool
	// Advertised lists the service ids included in advertisements.
	Advertised []string
	// Values maps "SERVICE/CHAR" to the current value. Every key is also part of the discovered
	// profile.
	Values map[string][]byte
	// WriteOnly lists "SERVICE/CHAR" keys that exist in the profile but cannot be read.
	WriteOnly []string
	MTU       int
}

// Key returns the Values key for char within service.
func Key(service, char string) string {
	return strings.ToUpper(service) + "/" + strings.ToUpper(char)
}

// Write is a recorded WriteCharacteristic call.
type Write struct {
	DeviceID     string
	Key          string
	Value        []byte
	WithResponse bool
}

type handle struct {
	id  string
	mtu int
	n   int
}

func (h *handle) DeviceID() string { return h.id }
func (h *handle) MTU() int { return h.mtu }

// Transport is a connector.Transport backed by simulated peripherals.
type Transport struct {
	mu          sync.Mutex
	peripherals map[string]*Peripheral
	live        map[*handle]bool
	nextHandle  int

	// Failure injection. Errors keyed by "SERVICE/CHAR" apply to that characteristic only.
	ScanErr       error
	ScanErrAfter  time.Duration
	ConnectErr    error
	ConnectDelay  time.Duration
	DiscoverErr   error
	DisconnectErr error
	ReadErr       map[string]error
	WriteErr      map[string]error
	// OpDelay is applied to every read and write.
	OpDelay time.Duration

	writes      []Write
	reads       []string
	connects    int
	disconnects int
	scans       int
}

// New returns a Transport exposing peripherals.
func New(peripherals ...*Peripheral) *Transport {
	t := &Transport{
		peripherals: make(map[string]*Peripheral),
		live:        make(map[*handle]bool),
		ReadErr:     make(map[string]error),
		WriteErr:    make(map[string]error),
	}
	for _, p := range peripherals {
		t.Add(p)
	}
	return t
}

// Add registers or replaces a peripheral.
func (t *Transport) Add(p *Peripheral) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.Values == nil {
		p.Values = make(map[string][]byte)
	}
	t.peripherals[p.ID] = p
}

// Value returns the current value of a characteristic on peripheral id.
func (t *Transport) Value(id, service, char string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peripherals[id]
	if !ok {
		return nil, false
	}
	v, ok := p.Values[Key(service, char)]
	return slices.Clone(v), ok
}

// Writes returns every write issued so far, in order.
func (t *Transport) Writes() []Write {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.writes)
}

// Reads returns the keys of every read issued so far, in order.
func (t *Transport) Reads() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.reads)
}

// LiveConnections returns the number of links that have not been disconnected.
func (t *Transport) LiveConnections() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// Counts returns the number of Scan, Connect and Disconnect calls.
func (t *Transport) Counts() (scans, connects, disconnects int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scans, t.connects, t.disconnects
}

func (t *Transport) Scan(ctx context.Context, services []string, handler func(connector.Advertisement)) error {
	t.mu.Lock()
	t.scans++
	scanErr, after := t.ScanErr, t.ScanErrAfter
	var adverts []connector.Advertisement
	ids := make([]string, 0, len(t.peripherals))
	for id := range t.peripherals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := t.peripherals[id]
		if len(services) > 0 && !matches(p.Advertised, services) {
			continue
		}
		adverts = append(adverts, connector.Advertisement{
			DeviceID:    p.ID,
			LocalName:   p.Name,
			RSSI:        p.RSSI,
			Services:    slices.Clone(p.Advertised),
			Connectable: p.Connectable,
		})
	}
	t.mu.Unlock()

	for _, a := range adverts {
		handler(a)
	}
	if scanErr != nil {
		select {
		case <-time.After(after):
			return scanErr
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

func matches(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

func (t *Transport) Connect(ctx context.Context, deviceID string, opts connector.ConnectOptions) (connector.Handle, error) {
	t.mu.Lock()
	t.connects++
	delay, connectErr := t.ConnectDelay, t.ConnectErr
	t.mu.Unlock()

	if delay > 0 {
		if opts.Timeout > 0 && delay > opts.Timeout {
			if err := sleep(ctx, opts.Timeout); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("fake: connection to %s timed out", deviceID)
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	if connectErr != nil {
		return nil, connectErr
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peripherals[deviceID]
	if !ok {
		return nil, fmt.Errorf("fake: no peripheral %s", deviceID)
	}
	mtu := connector.DefaultMTU
	if opts.PreferredMTU > 0 {
		mtu = opts.PreferredMTU
	}
	if p.MTU > 0 && p.MTU < mtu {
		mtu = p.MTU
	}
	t.nextHandle++
	h := &handle{id: deviceID, mtu: mtu, n: t.nextHandle}
	t.live[h] = true
	return h, nil
}

func (t *Transport) lookup(h connector.Handle) (*Peripheral, *handle, error) {
	fh, ok := h.(*handle)
	if !ok || !t.live[fh] {
		return nil, nil, errors.New("fake: link is not connected")
	}
	p, ok := t.peripherals[fh.id]
	if !ok {
		return nil, nil, errors.New("fake: peripheral vanished")
	}
	return p, fh, nil
}

func (t *Transport) Discover(_ context.Context, h connector.Handle) ([]connector.ServiceInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.DiscoverErr != nil {
		return nil, t.DiscoverErr
	}
	p, _, err := t.lookup(h)
	if err != nil {
		return nil, err
	}

	byService := make(map[string][]connector.CharacteristicInfo)
	add := func(key string, props connector.Property) {
		service, char, _ := strings.Cut(key, "/")
		byService[service] = append(byService[service], connector.CharacteristicInfo{UUID: char, Properties: props})
	}
	for key := range p.Values {
		if !slices.Contains(p.WriteOnly, key) {
			add(key, connector.PropertyRead|connector.PropertyWrite)
		}
	}
	for _, key := range p.WriteOnly {
		add(key, connector.PropertyWrite|connector.PropertyWriteWithoutResponse)
	}

	services := make([]connector.ServiceInfo, 0, len(byService))
	for id, chars := range byService {
		sort.Slice(chars, func(i, j int) bool { return chars[i].UUID < chars[j].UUID })
		services = append(services, connector.ServiceInfo{UUID: id, Characteristics: chars})
	}
	sort.Slice(services, func(i, j int) bool { return services[i].UUID < services[j].UUID })
	return services, nil
}

func (t *Transport) ReadCharacteristic(ctx context.Context, h connector.Handle, service, char string) ([]byte, error) {
	if err := sleep(ctx, t.opDelay()); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p, _, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	key := Key(service, char)
	t.reads = append(t.reads, key)
	if err := t.ReadErr[key]; err != nil {
		return nil, err
	}
	if slices.Contains(p.WriteOnly, key) {
		return nil, fmt.Errorf("fake: %s is not readable", key)
	}
	v, ok := p.Values[key]
	if !ok {
		return nil, fmt.Errorf("fake: no characteristic %s", key)
	}
	return slices.Clone(v), nil
}

func (t *Transport) WriteCharacteristic(ctx context.Context, h connector.Handle, service, char string, value []byte, withResponse bool) error {
	if err := sleep(ctx, t.opDelay()); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p, fh, err := t.lookup(h)
	if err != nil {
		return err
	}
	key := Key(service, char)
	t.writes = append(t.writes, Write{DeviceID: fh.id, Key: key, Value: slices.Clone(value), WithResponse: withResponse})
	if err := t.WriteErr[key]; err != nil {
		return err
	}
	if _, ok := p.Values[key]; !ok && !slices.Contains(p.WriteOnly, key) {
		return fmt.Errorf("fake: no characteristic %s", key)
	}
	if !slices.Contains(p.WriteOnly, key) {
		p.Values[key] = slices.Clone(value)
	}
	return nil
}

func (t *Transport) Disconnect(_ context.Context, h connector.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
	if fh, ok := h.(*handle); ok {
		delete(t.live, fh)
	}
	return t.DisconnectErr
}

func (t *Transport) opDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.OpDelay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Int returns a pointer to v, for Peripheral.RSSI.
func Int(v int) *int {
	return &v
}
