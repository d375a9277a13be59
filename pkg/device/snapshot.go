package device

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// DefaultName is shown for devices that do not advertise a local name.
const DefaultName = "Unit-Hub Device"

// Discovered is a peripheral observed during a scan.
type Discovered struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RSSI        *int      `json:"rssi,omitempty"`
	Services    []string  `json:"services,omitempty"`
	Connectable bool      `json:"connectable"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Update supersedes d with a later observation of the same device. The first-seen timestamp is
// preserved.
func (d *Discovered) Update(later Discovered) {
	first := d.FirstSeen
	*d = later.Clone()
	if !first.IsZero() {
		d.FirstSeen = first
	}
}

// Clone returns a deep copy of d.
func (d Discovered) Clone() Discovered {
	out := d
	if d.RSSI != nil {
		rssi := *d.RSSI
		out.RSSI = &rssi
	}
	out.Services = slices.Clone(d.Services)
	return out
}

// HasService reports whether the device advertised service id.
func (d Discovered) HasService(id string) bool {
	return slices.Contains(d.Services, strings.ToUpper(id))
}

// ServiceSet returns ids as a sorted set of upper-case identifiers.
func ServiceSet(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(id)
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ConnectionStatus is the connection state reported in a Snapshot.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusFailed       ConnectionStatus = "failed"
)

// Snapshot aggregates everything known about the connected device. Service records are nil
// until they have been read successfully.
type Snapshot struct {
	Device        Discovered            `json:"device"`
	Status        ConnectionStatus      `json:"connectionStatus"`
	Info          *Info                 `json:"deviceInfo,omitempty"`
	Durations     *MeasurementDurations `json:"measurementDurations,omitempty"`
	LoRaWAN       *LoRaWANConfig        `json:"lorawanConfig,omitempty"`
	OTA           *OTA                  `json:"otaInfo,omitempty"`
	SystemControl *SystemControl        `json:"systemControl,omitempty"`
	Alarms        *Alarms               `json:"alarmStatus,omitempty"`
	Logging       *Logging              `json:"logging,omitempty"`
	LastSync      time.Time             `json:"lastSync"`
}

// Clone returns a deep copy of s. Collection entries are immutable values, so the slices are
// copied but their Data payloads are shared.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Device = s.Device.Clone()
	out.Info = clonePtr(s.Info)
	out.Durations = clonePtr(s.Durations)
	out.LoRaWAN = clonePtr(s.LoRaWAN)
	out.OTA = clonePtr(s.OTA)
	out.SystemControl = clonePtr(s.SystemControl)
	if s.Alarms != nil {
		a := *s.Alarms
		a.History = slices.Clone(s.Alarms.History)
		out.Alarms = &a
	}
	if s.Logging != nil {
		l := *s.Logging
		l.CurrentLogs = slices.Clone(s.Logging.CurrentLogs)
		l.AvailableLogFiles = slices.Clone(s.Logging.AvailableLogFiles)
		out.Logging = &l
	}
	return &out
}

// With returns a copy of s with record merged in. Records of an unknown type leave the copy
// unchanged apart from LastSync.
func (s *Snapshot) With(record Record, now time.Time) *Snapshot {
	out := s.Clone()
	if out == nil {
		out = &Snapshot{}
	}
	switch r := record.(type) {
	case *Info:
		out.Info = clonePtr(r)
	case *MeasurementDurations:
		out.Durations = clonePtr(r)
	case *LoRaWANConfig:
		out.LoRaWAN = clonePtr(r)
	case *OTA:
		out.OTA = clonePtr(r)
	case *SystemControl:
		out.SystemControl = clonePtr(r)
	case *Alarms:
		a := *r
		a.History = slices.Clone(r.History)
		out.Alarms = &a
	case *Logging:
		l := *r
		l.CurrentLogs = slices.Clone(r.CurrentLogs)
		l.AvailableLogFiles = slices.Clone(r.AvailableLogFiles)
		out.Logging = &l
	}
	out.LastSync = now
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
