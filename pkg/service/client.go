// Package service reads and writes whole Unit-Hub services over a connected link.
//
// A read fetches every readable characteristic of a service that the device exposes and decodes
// it into the matching device record. Failures on individual characteristics are logged and
// tolerated; the read fails with protocol.ErrServiceUnavailable only when too few values could
// be decoded (see Quorum).
//
// A write validates and encodes every supplied field before anything is sent, so an invalid value
// never leaves the device partially updated. Characteristics are then written one at a time with
// response, and any failures are reported together as protocol.ErrWriteRejected.
package service

//go:generate mockgen -source client.go -destination ../../mocks/link.go -package mocks -mock_names Link=Link

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"golang.org/x/time/rate"

	"github.com/unithub/unithub-ble/internal/log"
	"github.com/unithub/unithub-ble/pkg/device"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

// Link is the subset of connection.Link used by the Client.
type Link interface {
	DeviceID() string
	MTU() int
	HasService(protocol.ServiceID) bool
	HasCharacteristic(protocol.ServiceID, protocol.CharacteristicID) bool
	Read(ctx context.Context, service protocol.ServiceID, char protocol.CharacteristicID) ([]byte, error)
	Write(ctx context.Context, service protocol.ServiceID, char protocol.CharacteristicID, value []byte, withResponse bool) error
}

// Quorum decides how many characteristics of a service must decode for a read to succeed.
type Quorum int

const (
	// QuorumAny accepts a read if at least one characteristic decoded.
	QuorumAny Quorum = iota
	// QuorumMajority requires more than half of the characteristics present on the device.
	QuorumMajority
)

func (q Quorum) met(populated, attempted int) bool {
	if populated == 0 {
		return false
	}
	if q == QuorumMajority {
		return populated*2 > attempted
	}
	return true
}

const (
	// MaxChunkSize caps a single firmware upload write.
	MaxChunkSize = 500
	// DefaultUploadRate is the number of firmware chunks written per second.
	DefaultUploadRate rate.Limit = 20
)

// Client is stateless apart from its options and is safe for concurrent use.
type Client struct {
	quorum     Quorum
	uploadRate rate.Limit
	chunkSize  int
}

// Option configures a Client.
type Option func(*Client)

func WithQuorum(q Quorum) Option {
	return func(c *Client) { c.quorum = q }
}

// WithUploadRate limits firmware upload writes to r chunks per second. rate.Inf disables pacing.
func WithUploadRate(r rate.Limit) Option {
	return func(c *Client) { c.uploadRate = r }
}

// WithChunkSize sets the largest firmware chunk, which is further bounded by the link MTU.
func WithChunkSize(n int) Option {
	return func(c *Client) { c.chunkSize = n }
}

func New(opts ...Option) *Client {
	c := &Client{
		quorum:     QuorumAny,
		uploadRate: DefaultUploadRate,
		chunkSize:  MaxChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func isNil(link Link) bool {
	if link == nil {
		return true
	}
	v := reflect.ValueOf(link)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// lookup resolves a service both in the schema and on the connected device.
func lookup(op string, link Link, id protocol.ServiceID) (protocol.Service, error) {
	if isNil(link) {
		return protocol.Service{}, protocol.Wrap(op, protocol.ErrNotConnected, nil).At(id, "")
	}
	svc, ok := protocol.LookupService(id)
	if !ok {
		return protocol.Service{}, protocol.Wrap(op, protocol.ErrServiceUnavailable, errors.New("unknown service")).At(id, "")
	}
	if !link.HasService(id) {
		return protocol.Service{}, protocol.Wrap(op, protocol.ErrServiceUnavailable, errors.New("service not found on device")).At(id, "")
	}
	return svc, nil
}

// Read fetches and decodes every readable characteristic of service. Fields whose
// characteristic is absent or fails keep their default value.
func (c *Client) Read(ctx context.Context, link Link, service protocol.ServiceID) (device.Record, error) {
	rec, ok := device.NewRecord(service)
	if !ok {
		return nil, protocol.Wrap("read", protocol.ErrServiceUnavailable, errors.New("unknown service")).At(service, "")
	}
	if err := c.ReadInto(ctx, link, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReadInto is Read for a caller-supplied record, which determines the service.
func (c *Client) ReadInto(ctx context.Context, link Link, rec device.Record) error {
	id := rec.Service()
	svc, err := lookup("read", link, id)
	if err != nil {
		return err
	}
	rv, fields, err := bind(rec)
	if err != nil {
		return err
	}

	var (
		attempted, populated int
		failures             []error
	)
	for _, char := range svc.Readable() {
		index, bound := fields[char.ID]
		if !bound {
			continue
		}
		if !link.HasCharacteristic(id, char.ID) {
			log.Debug("Skipping %s %s: not present on device", svc.Name, char.Name)
			continue
		}
		attempted++
		raw, err := link.Read(ctx, id, char.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, protocol.ErrNotConnected) {
				return protocol.Wrap("read", protocol.ErrNotConnected, err).At(id, char.ID)
			}
			log.Warning("Failed to read %s %s: %s", svc.Name, char.Name, err)
			failures = append(failures, protocol.Wrap("read", nil, err).At(id, char.ID))
			continue
		}
		log.Debug("RX %s/%s: %02x", id, char.ID, raw)
		value, err := decode(char, raw)
		if err == nil {
			err = assign(rv.FieldByIndex(index), value)
		}
		if err != nil {
			log.Warning("Failed to decode %s %s: %s", svc.Name, char.Name, err)
			failures = append(failures, protocol.Wrap("decode", protocol.ErrMalformedPayload, err).At(id, char.ID))
			continue
		}
		populated++
	}

	if !c.quorum.met(populated, attempted) {
		cause := errors.Join(failures...)
		if attempted == 0 {
			cause = errors.New("no readable characteristics on device")
		}
		return protocol.Wrap("read", protocol.ErrServiceUnavailable, cause).At(id, "")
	}
	if len(failures) > 0 {
		log.Info("Read %s with %d of %d characteristics", svc.Name, populated, attempted)
	}
	return nil
}

type pendingWrite struct {
	char    protocol.Characteristic
	payload []byte
}

// Write sends every supplied field of value to service. value is a full record or a patch
// whose nil fields are omitted. Every field is validated before the first write; an invalid field
// fails with protocol.ErrInvalidValue and nothing is sent. The remaining writes are attempted even
// after one fails, and all failures are returned joined under protocol.ErrWriteRejected.
func (c *Client) Write(ctx context.Context, link Link, service protocol.ServiceID, value any) error {
	if isNil(link) {
		return protocol.Wrap("write", protocol.ErrNotConnected, nil).At(service, "")
	}
	svc, ok := protocol.LookupService(service)
	if !ok {
		return protocol.Wrap("write", protocol.ErrServiceUnavailable, errors.New("unknown service")).At(service, "")
	}
	if rec, ok := value.(device.Record); ok && rec.Service() != service {
		return protocol.Wrap("write", protocol.ErrInvalidValue,
			fmt.Errorf("%T belongs to service %s", value, rec.Service())).At(service, "")
	}
	rv, fields, err := bind(value)
	if err != nil {
		return protocol.Wrap("write", protocol.ErrInvalidValue, err).At(service, "")
	}

	var writes []pendingWrite
	for _, char := range svc.Writable() {
		index, bound := fields[char.ID]
		if !bound {
			continue
		}
		v, ok := supplied(rv.FieldByIndex(index))
		if !ok {
			continue
		}
		payload, err := encode(char, v)
		if err != nil {
			return protocol.Wrap("write", protocol.ErrInvalidValue, err).At(service, char.ID)
		}
		writes = append(writes, pendingWrite{char: char, payload: payload})
	}
	if len(writes) == 0 {
		return nil
	}
	if _, err := lookup("write", link, service); err != nil {
		return err
	}

	var failures []error
	for _, w := range writes {
		if !link.HasCharacteristic(service, w.char.ID) {
			failures = append(failures, protocol.Wrap("write", nil, errors.New("characteristic not found on device")).At(service, w.char.ID))
			continue
		}
		log.Debug("TX %s/%s: %02x", service, w.char.ID, w.payload)
		if err := link.Write(ctx, service, w.char.ID, w.payload, true); err != nil {
			log.Warning("Failed to write %s %s: %s", svc.Name, w.char.Name, err)
			failures = append(failures, protocol.Wrap("write", nil, err).At(service, w.char.ID))
		}
	}
	if len(failures) > 0 {
		return protocol.Wrap("write", protocol.ErrWriteRejected, errors.Join(failures...)).At(service, "")
	}
	return nil
}

// WriteCharacteristic encodes value according to the schema entry for char and writes it with
// response.
func (c *Client) WriteCharacteristic(ctx context.Context, link Link, char protocol.CharacteristicID, value any) error {
	schemaChar, service, ok := protocol.LookupCharacteristic(char)
	if !ok || !schemaChar.Access.Writable() {
		return protocol.Wrap("write", protocol.ErrInvalidValue, errors.New("characteristic is not writable")).At("", char)
	}
	payload, err := encode(schemaChar, reflect.ValueOf(value))
	if err != nil {
		return protocol.Wrap("write", protocol.ErrInvalidValue, err).At(service, char)
	}
	if _, err := lookup("write", link, service); err != nil {
		return err
	}
	if !link.HasCharacteristic(service, char) {
		return protocol.Wrap("write", protocol.ErrWriteRejected, errors.New("characteristic not found on device")).At(service, char)
	}
	if err := link.Write(ctx, service, char, payload, true); err != nil {
		return protocol.Wrap("write", protocol.ErrWriteRejected, err).At(service, char)
	}
	return nil
}
