package ble

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

const bleTimeout = 20 * time.Second

// Unit-Hub devices advertise every 100ms to 1s depending on their power profile.
var scanParams = cmd.LESetScanParameters{
	LEScanType:           1,    // Active scanning, so the scan response carries the local name
	LEScanInterval:       0x10, // 10ms
	LEScanWindow:         0x10, // 10ms
	OwnAddressType:       0,    // Static
	ScanningFilterPolicy: 0,    // Accept all; filtering happens on advertised services
}

func newRadio(id string) (Radio, error) {
	opts := []ble.Option{
		ble.OptListenerTimeout(bleTimeout),
		ble.OptDialerTimeout(bleTimeout),
		ble.OptScanParams(scanParams),
	}
	if id != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(id, "hci"))
		if err != nil || n < 0 {
			return nil, ErrAdapterInvalidID
		}
		opts = append(opts, ble.OptDeviceID(n))
	}
	device, err := linux.NewDevice(opts...)
	if err != nil {
		return nil, err
	}
	return radio{device: device}, nil
}

// IsAdapterError reports whether err was caused by a missing or inaccessible HCI controller.
func IsAdapterError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "can't init hci") ||
		strings.Contains(msg, "operation not permitted") ||
		strings.Contains(msg, "no such device")
}

func AdapterErrorHelpMessage(err error) string {
	return "Failed to initialize BLE adapter: \n\t" + err.Error() + "\n" +
		"Make sure a Bluetooth controller is present and that this process has the CAP_NET_ADMIN and CAP_NET_RAW capabilities\n" +
		"(e.g. sudo setcap 'cap_net_raw,cap_net_admin+eip' <binary>)."
}
