package protocol

import (
	"fmt"
	"strings"
)

// ServiceID is the 16-bit identifier of a GATT service, rendered as four upper-case hex digits.
type ServiceID string

// CharacteristicID is the 16-bit identifier of a GATT characteristic, rendered as four
// upper-case hex digits.
type CharacteristicID string

// Unit-Hub services. Device Information uses the Bluetooth SIG assigned number; the remaining
// services live in the vendor's private range.
const (
	ServiceDeviceInformation    ServiceID = "180A"
	ServiceMeasurementDurations ServiceID = "1810"
	ServiceLoRaWAN              ServiceID = "1811"
	ServiceOTA                  ServiceID = "1812"
	ServiceSystemControl        ServiceID = "1813"
	ServiceAlarms               ServiceID = "1814"
	ServiceLogging              ServiceID = "1815"
)

// RootService is advertised by every Unit-Hub and is used to filter discovery scans.
const RootService = ServiceDeviceInformation

const (
	// Device Information
	CharManufacturerName CharacteristicID = "2A29"
	CharModelNumber      CharacteristicID = "2A24"
	CharSerialNumber     CharacteristicID = "2A25"
	CharHardwareRevision CharacteristicID = "2A27"
	CharFirmwareRevision CharacteristicID = "2A26"
	CharSoftwareRevision CharacteristicID = "2A28"
	CharSystemID         CharacteristicID = "2A23"
	CharIEEECertData     CharacteristicID = "2A2A"
	CharPnPID            CharacteristicID = "2A50"

	// Measurement Durations
	CharGasDuration   CharacteristicID = "2A56"
	CharGNSSDuration  CharacteristicID = "2A57"
	CharPowerDuration CharacteristicID = "2A58"

	// LoRaWAN Configuration
	CharAppEUI           CharacteristicID = "2A59"
	CharDevEUI           CharacteristicID = "2A5A"
	CharAppKey           CharacteristicID = "2A5B"
	CharSearchDuration   CharacteristicID = "2A5C"
	CharValidSearchTimes CharacteristicID = "2A5D"
	CharSleepDuration    CharacteristicID = "2A5E"
	CharNetworkStatus    CharacteristicID = "2A5F"

	// OTA
	CharOTAVersion  CharacteristicID = "2A60"
	CharOTAStatus   CharacteristicID = "2A61"
	CharOTAProgress CharacteristicID = "2A62"
	CharOTAData     CharacteristicID = "2A63"

	// System Control
	CharBLEName            CharacteristicID = "2A64"
	CharOccupancyDetection CharacteristicID = "2A65"
	CharInstantSendTest    CharacteristicID = "2A66"
	CharFactoryReset       CharacteristicID = "2A67"

	// Alarms
	CharAlarmStatus  CharacteristicID = "2A68"
	CharAlarmHistory CharacteristicID = "2A69"

	// Logging
	CharCurrentLogs CharacteristicID = "2A6A"
	CharLogFiles    CharacteristicID = "2A6B"
	CharLogDownload CharacteristicID = "2A6C"
)

// bluetoothBaseSuffix completes a 16-bit assigned number into a 128-bit UUID.
const bluetoothBaseSuffix = "-0000-1000-8000-00805F9B34FB"

// NormalizeID converts a 16-bit identifier or a 128-bit UUID derived from the Bluetooth base
// UUID into the canonical four-digit upper-case form. Other 128-bit UUIDs are returned in
// upper case without modification.
func NormalizeID(id string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(id))
	s = strings.TrimPrefix(s, "0X")
	switch {
	case len(s) == 4 && isHex(s):
		return s, nil
	case len(s) == 8 && isHex(s) && strings.HasPrefix(s, "0000"):
		return s[4:], nil
	case len(s) == 36 && strings.HasSuffix(s, bluetoothBaseSuffix) && strings.HasPrefix(s, "0000") && isHex(s[4:8]):
		return s[4:8], nil
	case len(s) == 36:
		return s, nil
	}
	return "", fmt.Errorf("invalid bluetooth identifier '%s'", id)
}

// LongUUID expands a 16-bit identifier into its 128-bit Bluetooth base form.
func LongUUID(id string) string {
	if len(id) != 4 {
		return strings.ToUpper(id)
	}
	return "0000" + strings.ToUpper(id) + bluetoothBaseSuffix
}

func isHex(s string) bool {
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
