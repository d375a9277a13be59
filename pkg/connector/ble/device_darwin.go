package ble

import (
	"github.com/go-ble/ble/darwin"

	"github.com/unithub/unithub-ble/internal/log"
)

func newRadio(id string) (Radio, error) {
	if id != "" {
		log.Warning("Darwin does not support specifying a Bluetooth adapter ID")
		return nil, ErrAdapterInvalidID
	}
	device, err := darwin.NewDevice()
	if err != nil {
		return nil, err
	}
	return radio{device: device}, nil
}

func IsAdapterError(_ error) bool {
	// TODO: Detect a denied CoreBluetooth authorization once go-ble exposes the manager state.
	return false
}

func AdapterErrorHelpMessage(err error) string {
	return err.Error()
}
