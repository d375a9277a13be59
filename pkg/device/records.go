package device

import (
	"time"

	"github.com/unithub/unithub-ble/pkg/codec"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

// Record is implemented by every service record. Fields tagged `gatt:"<characteristic id>"` are
// bound to the schema entry with that id.
type Record interface {
	Service() protocol.ServiceID
}

// Info holds the standard Device Information service (180A).
type Info struct {
	ManufacturerName string `json:"manufacturerName,omitempty" gatt:"2A29"`
	ModelNumber      string `json:"modelNumber,omitempty" gatt:"2A24"`
	SerialNumber     string `json:"serialNumber,omitempty" gatt:"2A25"`
	HardwareRevision string `json:"hardwareRevision,omitempty" gatt:"2A27"`
	FirmwareRevision string `json:"firmwareRevision,omitempty" gatt:"2A26"`
	SoftwareRevision string `json:"softwareRevision,omitempty" gatt:"2A28"`
	SystemID         string `json:"systemId,omitempty" gatt:"2A23"`
	IEEECertData     string `json:"ieee11073CertData,omitempty" gatt:"2A2A"`
	PnPID            string `json:"pnpId,omitempty" gatt:"2A50"`
}

func (*Info) Service() protocol.ServiceID { return protocol.ServiceDeviceInformation }

// MeasurementDurations holds the sampling periods, in minutes, of the on-board sensors.
type MeasurementDurations struct {
	Gas   uint16 `json:"gasDuration" gatt:"2A56"`
	GNSS  uint16 `json:"gnssDuration" gatt:"2A57"`
	Power uint16 `json:"powerConsumptionDuration" gatt:"2A58"`
}

func (*MeasurementDurations) Service() protocol.ServiceID {
	return protocol.ServiceMeasurementDurations
}

// DefaultMeasurementDuration is reported for a duration the device did not return.
const DefaultMeasurementDuration = 30

// MeasurementDurationsPatch selects the durations to change. Nil fields are left untouched.
type MeasurementDurationsPatch struct {
	Gas   *uint16 `json:"gasDuration,omitempty" yaml:"gas,omitempty" gatt:"2A56"`
	GNSS  *uint16 `json:"gnssDuration,omitempty" yaml:"gnss,omitempty" gatt:"2A57"`
	Power *uint16 `json:"powerConsumptionDuration,omitempty" yaml:"power,omitempty" gatt:"2A58"`
}

func (*MeasurementDurationsPatch) Service() protocol.ServiceID {
	return protocol.ServiceMeasurementDurations
}

// NetworkStatus is the LoRaWAN join state reported by the device.
type NetworkStatus string

const (
	NetworkDisconnected NetworkStatus = "disconnected"
	NetworkSearching    NetworkStatus = "searching"
	NetworkConnected    NetworkStatus = "connected"
)

// SearchWindow is the daily time range during which the device searches for a LoRaWAN
// network.
type SearchWindow struct {
	StartHour   uint8 `json:"startHour" yaml:"startHour"`
	StartMinute uint8 `json:"startMinute" yaml:"startMinute"`
	EndHour     uint8 `json:"endHour" yaml:"endHour"`
	EndMinute   uint8 `json:"endMinute" yaml:"endMinute"`
}

// Pack returns the 32-bit wire representation of w.
func (w SearchWindow) Pack() uint32 {
	return codec.PackSearchWindow(w.StartHour, w.StartMinute, w.EndHour, w.EndMinute)
}

// UnpackSearchWindow is the inverse of SearchWindow.Pack.
func UnpackSearchWindow(v uint32) SearchWindow {
	var w SearchWindow
	w.StartHour, w.StartMinute, w.EndHour, w.EndMinute = codec.UnpackSearchWindow(v)
	return w
}

// Valid reports whether every sub-field is a valid time of day.
func (w SearchWindow) Valid() bool {
	return w.StartHour < 24 && w.EndHour < 24 && w.StartMinute < 60 && w.EndMinute < 60
}

// LoRaWANConfig holds the LoRaWAN Configuration service (1811). Hex identifiers are upper case
// without separators. Durations are in seconds.
type LoRaWANConfig struct {
	AppEUI           string        `json:"appEUI" gatt:"2A59"`
	DevEUI           string        `json:"devEUI" gatt:"2A5A"`
	AppKey           string        `json:"appKey" gatt:"2A5B"`
	SearchDuration   uint16        `json:"searchDuration" gatt:"2A5C"`
	ValidSearchTimes SearchWindow  `json:"validSearchTimes" gatt:"2A5D"`
	SleepDuration    uint16        `json:"sleepDuration" gatt:"2A5E"`
	NetworkStatus    NetworkStatus `json:"networkStatus" gatt:"2A5F"`
}

func (*LoRaWANConfig) Service() protocol.ServiceID { return protocol.ServiceLoRaWAN }

// LoRaWANConfigPatch selects the LoRaWAN settings to change. Nil fields are left untouched.
type LoRaWANConfigPatch struct {
	AppEUI           *string       `json:"appEUI,omitempty" yaml:"appEUI,omitempty" gatt:"2A59"`
	DevEUI           *string       `json:"devEUI,omitempty" yaml:"devEUI,omitempty" gatt:"2A5A"`
	AppKey           *string       `json:"appKey,omitempty" yaml:"appKey,omitempty" gatt:"2A5B"`
	SearchDuration   *uint16       `json:"searchDuration,omitempty" yaml:"searchDuration,omitempty" gatt:"2A5C"`
	ValidSearchTimes *SearchWindow `json:"validSearchTimes,omitempty" yaml:"validSearchTimes,omitempty" gatt:"2A5D"`
	SleepDuration    *uint16       `json:"sleepDuration,omitempty" yaml:"sleepDuration,omitempty" gatt:"2A5E"`
}

func (*LoRaWANConfigPatch) Service() protocol.ServiceID { return protocol.ServiceLoRaWAN }

// OTAStatus is the firmware update state machine of the device.
type OTAStatus string

const (
	OTAIdle         OTAStatus = "idle"
	OTARequesting   OTAStatus = "requesting"
	OTATransferring OTAStatus = "transferring"
	OTACompleting   OTAStatus = "completing"
	OTACompleted    OTAStatus = "completed"
	OTAFailed       OTAStatus = "failed"
)

// OTA holds the readable part of the OTA service (1812).
type OTA struct {
	CurrentVersion string    `json:"currentVersion" gatt:"2A60"`
	Status         OTAStatus `json:"updateStatus" gatt:"2A61"`
	Progress       uint8     `json:"progress" gatt:"2A62"`
}

func (*OTA) Service() protocol.ServiceID { return protocol.ServiceOTA }

// OTACommandStart asks the device to enter firmware update mode.
const OTACommandStart = 0xA0

// OTAPatch carries a raw payload for the OTA data characteristic. A nil Data is omitted.
type OTAPatch struct {
	Data []byte `json:"data,omitempty" gatt:"2A63"`
}

func (*OTAPatch) Service() protocol.ServiceID { return protocol.ServiceOTA }

// SystemControl holds the System Control service (1813).
type SystemControl struct {
	BLEName            string `json:"bleName" gatt:"2A64"`
	OccupancyDetection bool   `json:"occupancyDetection" gatt:"2A65"`
	InstantSendTest    bool   `json:"instantSendTest" gatt:"2A66"`
	FactoryReset       bool   `json:"factoryReset" gatt:"2A67"`
}

func (*SystemControl) Service() protocol.ServiceID { return protocol.ServiceSystemControl }

// DefaultBLEName is the advertised name of a factory-fresh device.
const DefaultBLEName = "UH_SN1"

// SystemControlPatch selects the system settings to change. Nil fields are left untouched.
type SystemControlPatch struct {
	BLEName            *string `json:"bleName,omitempty" yaml:"bleName,omitempty" gatt:"2A64"`
	OccupancyDetection *bool   `json:"occupancyDetection,omitempty" yaml:"occupancyDetection,omitempty" gatt:"2A65"`
	InstantSendTest    *bool   `json:"instantSendTest,omitempty" yaml:"-" gatt:"2A66"`
	FactoryReset       *bool   `json:"factoryReset,omitempty" yaml:"-" gatt:"2A67"`
}

func (*SystemControlPatch) Service() protocol.ServiceID { return protocol.ServiceSystemControl }

// AlarmFlags is the bit field reported by the alarm status characteristic.
type AlarmFlags uint8

const (
	AlarmGas AlarmFlags = 1 << iota
	AlarmGNSS
	AlarmPower
	AlarmSystem
)

func (f AlarmFlags) Gas() bool    { return f&AlarmGas != 0 }
func (f AlarmFlags) GNSS() bool   { return f&AlarmGNSS != 0 }
func (f AlarmFlags) Power() bool  { return f&AlarmPower != 0 }
func (f AlarmFlags) System() bool { return f&AlarmSystem != 0 }

// Alarms holds the Alarm service (1814).
type Alarms struct {
	Active  AlarmFlags   `json:"active" gatt:"2A68"`
	History []AlarmEvent `json:"alarmHistory" gatt:"2A69"`
}

func (*Alarms) Service() protocol.ServiceID { return protocol.ServiceAlarms }

// DownloadStatus is the state of a log download.
type DownloadStatus string

const (
	DownloadIdle        DownloadStatus = "idle"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadCompleted   DownloadStatus = "completed"
	DownloadFailed      DownloadStatus = "failed"
)

// Logging holds the Logging service (1815).
type Logging struct {
	CurrentLogs       []LogEntry     `json:"currentLogs" gatt:"2A6A"`
	AvailableLogFiles []LogFile      `json:"availableLogFiles" gatt:"2A6B"`
	DownloadStatus    DownloadStatus `json:"downloadStatus" gatt:"2A6C"`
}

func (*Logging) Service() protocol.ServiceID { return protocol.ServiceLogging }

// AlarmEvent is a single entry of the alarm history.
type AlarmEvent struct {
	ID        string    `json:"id"`
	Type      Category  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Resolved  bool      `json:"resolved"`
}

// LogEntry is a single line of the device log.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Category  Category  `json:"category"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
}

// LogFile describes a log file stored on the device.
type LogFile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      uint64    `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	Type      Category  `json:"type"`
}

// Category names the subsystem an alarm, log line or log file belongs to.
type Category string

const (
	CategorySystem Category = "system"
	CategoryGas    Category = "gas"
	CategoryGNSS   Category = "gnss"
	CategoryPower  Category = "power"
	CategoryLoRa   Category = "lora"
	CategoryBLE    Category = "ble"
)

// Severity ranks an alarm event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// LogLevel ranks a log entry.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

var (
	alarmCategories = []Category{CategoryGas, CategoryGNSS, CategoryPower, CategorySystem}
	allCategories   = []Category{CategorySystem, CategoryGas, CategoryGNSS, CategoryPower, CategoryLoRa, CategoryBLE}
	severities      = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	logLevels       = []LogLevel{LogDebug, LogInfo, LogWarning, LogError}
)

// NewRecord returns the record for service pre-populated with its documented defaults.
func NewRecord(service protocol.ServiceID) (Record, bool) {
	switch service {
	case protocol.ServiceDeviceInformation:
		return &Info{}, true
	case protocol.ServiceMeasurementDurations:
		return &MeasurementDurations{
			Gas:   DefaultMeasurementDuration,
			GNSS:  DefaultMeasurementDuration,
			Power: DefaultMeasurementDuration,
		}, true
	case protocol.ServiceLoRaWAN:
		return &LoRaWANConfig{NetworkStatus: NetworkDisconnected}, true
	case protocol.ServiceOTA:
		return &OTA{Status: OTAIdle}, true
	case protocol.ServiceSystemControl:
		return &SystemControl{BLEName: DefaultBLEName}, true
	case protocol.ServiceAlarms:
		return &Alarms{History: []AlarmEvent{}}, true
	case protocol.ServiceLogging:
		return &Logging{CurrentLogs: []LogEntry{}, AvailableLogFiles: []LogFile{}, DownloadStatus: DownloadIdle}, true
	}
	return nil, false
}
