package service

import (
	"context"

	"github.com/unithub/unithub-ble/pkg/device"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

func readAs[T device.Record](ctx context.Context, c *Client, link Link, service protocol.ServiceID) (T, error) {
	var zero T
	rec, err := c.Read(ctx, link, service)
	if err != nil {
		return zero, err
	}
	return rec.(T), nil
}

func (c *Client) ReadInfo(ctx context.Context, link Link) (*device.Info, error) {
	return readAs[*device.Info](ctx, c, link, protocol.ServiceDeviceInformation)
}

func (c *Client) ReadMeasurementDurations(ctx context.Context, link Link) (*device.MeasurementDurations, error) {
	return readAs[*device.MeasurementDurations](ctx, c, link, protocol.ServiceMeasurementDurations)
}

func (c *Client) ReadLoRaWANConfig(ctx context.Context, link Link) (*device.LoRaWANConfig, error) {
	return readAs[*device.LoRaWANConfig](ctx, c, link, protocol.ServiceLoRaWAN)
}

func (c *Client) ReadOTA(ctx context.Context, link Link) (*device.OTA, error) {
	return readAs[*device.OTA](ctx, c, link, protocol.ServiceOTA)
}

func (c *Client) ReadSystemControl(ctx context.Context, link Link) (*device.SystemControl, error) {
	return readAs[*device.SystemControl](ctx, c, link, protocol.ServiceSystemControl)
}

func (c *Client) ReadAlarms(ctx context.Context, link Link) (*device.Alarms, error) {
	return readAs[*device.Alarms](ctx, c, link, protocol.ServiceAlarms)
}

func (c *Client) ReadLogging(ctx context.Context, link Link) (*device.Logging, error) {
	return readAs[*device.Logging](ctx, c, link, protocol.ServiceLogging)
}

// TriggerInstantSend asks the device to transmit a LoRaWAN uplink immediately.
func (c *Client) TriggerInstantSend(ctx context.Context, link Link) error {
	return c.WriteCharacteristic(ctx, link, protocol.CharInstantSendTest, true)
}

// FactoryReset restores the device defaults. The device usually drops the link afterwards.
func (c *Client) FactoryReset(ctx context.Context, link Link) error {
	return c.WriteCharacteristic(ctx, link, protocol.CharFactoryReset, true)
}
