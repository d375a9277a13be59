package protocol

// Encoding describes how a characteristic value is laid out on the wire.
type Encoding int

const (
	EncodingRaw          Encoding = iota // Opaque bytes, passed through unchanged.
	EncodingUint8                        // 1-byte unsigned integer.
	EncodingUint16                       // 2-byte little-endian unsigned integer.
	EncodingUint32                       // 4-byte little-endian unsigned integer.
	EncodingUTF8                         // UTF-8 text without length prefix.
	EncodingHex                          // Bytes presented as upper-case hex digits.
	EncodingBool                         // 1 byte, nonzero is true.
	EncodingEnum8                        // 1-byte index into Characteristic.Symbols.
	EncodingFlags8                       // 1-byte bit field.
	EncodingSearchWindow                 // Packed start/end hour and minute in a uint32.
	EncodingAlarmEvents                  // JSON array of alarm events.
	EncodingLogEntries                   // JSON array of log entries.
	EncodingLogFiles                     // JSON array of log file descriptors.
)

var encodingNames = map[Encoding]string{
	EncodingRaw:          "raw",
	EncodingUint8:        "uint8",
	EncodingUint16:       "uint16",
	EncodingUint32:       "uint32",
	EncodingUTF8:         "utf8",
	EncodingHex:          "hex",
	EncodingBool:         "bool",
	EncodingEnum8:        "enum8",
	EncodingFlags8:       "flags8",
	EncodingSearchWindow: "window32",
	EncodingAlarmEvents:  "alarm-events",
	EncodingLogEntries:   "log-entries",
	EncodingLogFiles:     "log-files",
}

func (e Encoding) String() string {
	if name, ok := encodingNames[e]; ok {
		return name
	}
	return "unknown"
}

// Access is a bit mask of the operations a characteristic supports.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite

	AccessReadWrite = AccessRead | AccessWrite
)

func (a Access) Readable() bool { return a&AccessRead != 0 }
func (a Access) Writable() bool { return a&AccessWrite != 0 }

// Characteristic is a single schema entry.
type Characteristic struct {
	ID       CharacteristicID
	Name     string
	Encoding Encoding
	Access   Access
	// Size is the exact payload length in bytes for fixed-size hex values. Zero means variable.
	Size int
	// Symbols lists the enum values of an EncodingEnum8 characteristic, indexed by wire code.
	Symbols []string
}

// Service groups the characteristics of one logical service.
type Service struct {
	ID              ServiceID
	Name            string
	Characteristics []Characteristic
}

// Readable returns the characteristics of s that can be read, in schema order.
func (s Service) Readable() []Characteristic {
	return s.filter(Access.Readable)
}

// Writable returns the characteristics of s that can be written, in schema order.
func (s Service) Writable() []Characteristic {
	return s.filter(Access.Writable)
}

// Characteristic returns the schema entry for id within s.
func (s Service) Characteristic(id CharacteristicID) (Characteristic, bool) {
	for _, c := range s.Characteristics {
		if c.ID == id {
			return c, true
		}
	}
	return Characteristic{}, false
}

func (s Service) filter(keep func(Access) bool) []Characteristic {
	var out []Characteristic
	for _, c := range s.Characteristics {
		if keep(c.Access) {
			out = append(out, c)
		}
	}
	return out
}

var (
	NetworkStatusSymbols  = []string{"disconnected", "searching", "connected"}
	OTAStatusSymbols      = []string{"idle", "requesting", "transferring", "completing", "completed", "failed"}
	DownloadStatusSymbols = []string{"idle", "downloading", "completed", "failed"}
)

// schema is the complete Unit-Hub protocol. New characteristics are added here and bound to a
// record field with a matching `gatt` struct tag.
var schema = []Service{
	{
		ID:   ServiceDeviceInformation,
		Name: "Device Information",
		Characteristics: []Characteristic{
			{ID: CharManufacturerName, Name: "manufacturer name", Encoding: EncodingUTF8, Access: AccessRead},
			{ID: CharModelNumber, Name: "model number", Encoding: EncodingUTF8, Access: AccessRead},
			{ID: CharSerialNumber, Name: "serial number", Encoding: EncodingUTF8, Access: AccessRead},
			{ID: CharHardwareRevision, Name: "hardware revision", Encoding: EncodingUTF8, Access: AccessRead},
			{ID: CharFirmwareRevision, Name: "firmware revision", Encoding: EncodingUTF8, Access: AccessRead},
			{ID: CharSoftwareRevision, Name: "software revision", Encoding: EncodingUTF8, Access: AccessRead},
			{ID: CharSystemID, Name: "system id", Encoding: EncodingHex, Access: AccessRead, Size: 8},
			{ID: CharIEEECertData, Name: "IEEE 11073 certification data", Encoding: EncodingHex, Access: AccessRead},
			{ID: CharPnPID, Name: "PnP id", Encoding: EncodingHex, Access: AccessRead, Size: 7},
		},
	},
	{
		ID:   ServiceMeasurementDurations,
		Name: "Measurement Durations",
		Characteristics: []Characteristic{
			{ID: CharGasDuration, Name: "gas duration", Encoding: EncodingUint16, Access: AccessReadWrite},
			{ID: CharGNSSDuration, Name: "GNSS duration", Encoding: EncodingUint16, Access: AccessReadWrite},
			{ID: CharPowerDuration, Name: "power consumption duration", Encoding: EncodingUint16, Access: AccessReadWrite},
		},
	},
	{
		ID:   ServiceLoRaWAN,
		Name: "LoRaWAN Configuration",
		Characteristics: []Characteristic{
			{ID: CharAppEUI, Name: "AppEUI", Encoding: EncodingHex, Access: AccessReadWrite, Size: 8},
			{ID: CharDevEUI, Name: "DevEUI", Encoding: EncodingHex, Access: AccessReadWrite, Size: 8},
			{ID: CharAppKey, Name: "AppKey", Encoding: EncodingHex, Access: AccessReadWrite, Size: 16},
			{ID: CharSearchDuration, Name: "search duration", Encoding: EncodingUint16, Access: AccessReadWrite},
			{ID: CharValidSearchTimes, Name: "valid search times", Encoding: EncodingSearchWindow, Access: AccessReadWrite},
			{ID: CharSleepDuration, Name: "sleep duration", Encoding: EncodingUint16, Access: AccessReadWrite},
			{ID: CharNetworkStatus, Name: "network status", Encoding: EncodingEnum8, Access: AccessRead, Symbols: NetworkStatusSymbols},
		},
	},
	{
		ID:   ServiceOTA,
		Name: "OTA",
		Characteristics: []Characteristic{
			{ID: CharOTAVersion, Name: "firmware version", Encoding: EncodingUTF8, Access: AccessRead},
			{ID: CharOTAStatus, Name: "update status", Encoding: EncodingEnum8, Access: AccessRead, Symbols: OTAStatusSymbols},
			{ID: CharOTAProgress, Name: "update progress", Encoding: EncodingUint8, Access: AccessRead},
			{ID: CharOTAData, Name: "OTA data", Encoding: EncodingRaw, Access: AccessWrite},
		},
	},
	{
		ID:   ServiceSystemControl,
		Name: "System Control",
		Characteristics: []Characteristic{
			{ID: CharBLEName, Name: "BLE name", Encoding: EncodingUTF8, Access: AccessReadWrite},
			{ID: CharOccupancyDetection, Name: "occupancy detection", Encoding: EncodingBool, Access: AccessReadWrite},
			{ID: CharInstantSendTest, Name: "instant send test", Encoding: EncodingBool, Access: AccessReadWrite},
			{ID: CharFactoryReset, Name: "factory reset", Encoding: EncodingBool, Access: AccessReadWrite},
		},
	},
	{
		ID:   ServiceAlarms,
		Name: "Alarms",
		Characteristics: []Characteristic{
			{ID: CharAlarmStatus, Name: "alarm status", Encoding: EncodingFlags8, Access: AccessRead},
			{ID: CharAlarmHistory, Name: "alarm history", Encoding: EncodingAlarmEvents, Access: AccessRead},
		},
	},
	{
		ID:   ServiceLogging,
		Name: "Logging",
		Characteristics: []Characteristic{
			{ID: CharCurrentLogs, Name: "current logs", Encoding: EncodingLogEntries, Access: AccessRead},
			{ID: CharLogFiles, Name: "log files", Encoding: EncodingLogFiles, Access: AccessRead},
			{ID: CharLogDownload, Name: "log download status", Encoding: EncodingEnum8, Access: AccessRead, Symbols: DownloadStatusSymbols},
		},
	},
}

var (
	servicesByID        = make(map[ServiceID]Service)
	characteristicsByID = make(map[CharacteristicID]Characteristic)
	serviceOf           = make(map[CharacteristicID]ServiceID)
)

func init() {
	for _, s := range schema {
		servicesByID[s.ID] = s
		for _, c := range s.Characteristics {
			characteristicsByID[c.ID] = c
			serviceOf[c.ID] = s.ID
		}
	}
}

// Services returns every schema service in declaration order.
func Services() []Service {
	out := make([]Service, len(schema))
	copy(out, schema)
	return out
}

// LookupService returns the schema entry for id. An unknown id is not an error; callers ignore
// services the schema does not describe.
func LookupService(id ServiceID) (Service, bool) {
	s, ok := servicesByID[id]
	return s, ok
}

// LookupCharacteristic returns the schema entry for id and the service that owns it.
func LookupCharacteristic(id CharacteristicID) (Characteristic, ServiceID, bool) {
	c, ok := characteristicsByID[id]
	if !ok {
		return Characteristic{}, "", false
	}
	return c, serviceOf[id], true
}
