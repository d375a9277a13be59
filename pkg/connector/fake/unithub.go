package fake

import (
	"github.com/unithub/unithub-ble/pkg/codec"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

// UnitHub returns a peripheral exposing every Unit-Hub service with plausible values.
func UnitHub(id, name string) *Peripheral {
	p := &Peripheral{
		ID:          id,
		Name:        name,
		RSSI:        Int(-58),
		Connectable: true,
		Advertised:  []string{string(protocol.ServiceDeviceInformation)},
		Values:      make(map[string][]byte),
		MTU:         247,
	}
	set := func(s protocol.ServiceID, c protocol.CharacteristicID, v []byte) {
		p.Values[Key(string(s), string(c))] = v
	}
	hex := func(s string) []byte {
		b, err := codec.EncodeHex(s)
		if err != nil {
			panic(err)
		}
		return b
	}

	info := protocol.ServiceDeviceInformation
	set(info, protocol.CharManufacturerName, codec.EncodeString("Unit-Hub"))
	set(info, protocol.CharModelNumber, codec.EncodeString("UH-100"))
	set(info, protocol.CharSerialNumber, codec.EncodeString("SN-000123"))
	set(info, protocol.CharHardwareRevision, codec.EncodeString("B2"))
	set(info, protocol.CharFirmwareRevision, codec.EncodeString("1.4.0"))
	set(info, protocol.CharSoftwareRevision, codec.EncodeString("1.4.0-rc1"))
	set(info, protocol.CharSystemID, hex("0102030405060708"))
	set(info, protocol.CharPnPID, hex("01590000010001"))

	durations := protocol.ServiceMeasurementDurations
	set(durations, protocol.CharGasDuration, codec.EncodeUint16(45))
	set(durations, protocol.CharGNSSDuration, codec.EncodeUint16(60))
	set(durations, protocol.CharPowerDuration, codec.EncodeUint16(15))

	lora := protocol.ServiceLoRaWAN
	set(lora, protocol.CharAppEUI, hex("70B3D57ED0001234"))
	set(lora, protocol.CharDevEUI, hex("0004A30B001C0530"))
	set(lora, protocol.CharAppKey, hex("2B7E151628AED2A6ABF7158809CF4F3C"))
	set(lora, protocol.CharSearchDuration, codec.EncodeUint16(120))
	set(lora, protocol.CharValidSearchTimes, codec.EncodeUint32(codec.PackSearchWindow(8, 0, 18, 30)))
	set(lora, protocol.CharSleepDuration, codec.EncodeUint16(900))
	set(lora, protocol.CharNetworkStatus, codec.EncodeUint8(2))

	ota := protocol.ServiceOTA
	set(ota, protocol.CharOTAVersion, codec.EncodeString("1.4.0"))
	set(ota, protocol.CharOTAStatus, codec.EncodeUint8(0))
	set(ota, protocol.CharOTAProgress, codec.EncodeUint8(0))
	p.WriteOnly = append(p.WriteOnly, Key(string(ota), string(protocol.CharOTAData)))

	system := protocol.ServiceSystemControl
	set(system, protocol.CharBLEName, codec.EncodeString(name))
	set(system, protocol.CharOccupancyDetection, codec.EncodeBool(true))
	set(system, protocol.CharInstantSendTest, codec.EncodeBool(false))
	set(system, protocol.CharFactoryReset, codec.EncodeBool(false))

	alarms := protocol.ServiceAlarms
	set(alarms, protocol.CharAlarmStatus, codec.EncodeUint8(0x05))
	set(alarms, protocol.CharAlarmHistory, []byte(`[{"id":"a1","type":"gas","timestamp":"2024-03-01T10:00:00Z","severity":"high","message":"CO2 above threshold","resolved":false}]`))

	logging := protocol.ServiceLogging
	set(logging, protocol.CharCurrentLogs, []byte(`[{"id":"l1","timestamp":"2024-03-01T10:00:00Z","level":"info","category":"lora","message":"joined"}]`))
	set(logging, protocol.CharLogFiles, []byte(`[{"id":"f1","name":"system.log","size":4096,"createdAt":"2024-03-01T00:00:00Z","type":"system"}]`))
	set(logging, protocol.CharLogDownload, codec.EncodeUint8(0))

	return p
}
