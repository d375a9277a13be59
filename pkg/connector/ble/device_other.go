//go:build !linux && !darwin

package ble

import (
	"github.com/unithub/unithub-ble/pkg/protocol"
)

func newRadio(_ string) (Radio, error) {
	return nil, protocol.ErrTransportUnavailable
}

func IsAdapterError(_ error) bool {
	return true
}

func AdapterErrorHelpMessage(err error) string {
	return "BLE is not supported on this platform: " + err.Error()
}
