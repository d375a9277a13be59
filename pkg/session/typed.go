package session

import (
	"context"

	"github.com/unithub/unithub-ble/pkg/device"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

func readAs[T device.Record](ctx context.Context, s *Session, id protocol.ServiceID) (T, error) {
	var zero T
	rec, err := s.ReadService(ctx, id)
	if err != nil {
		return zero, err
	}
	return rec.(T), nil
}

func (s *Session) ReadInfo(ctx context.Context) (*device.Info, error) {
	return readAs[*device.Info](ctx, s, protocol.ServiceDeviceInformation)
}

func (s *Session) ReadMeasurementDurations(ctx context.Context) (*device.MeasurementDurations, error) {
	return readAs[*device.MeasurementDurations](ctx, s, protocol.ServiceMeasurementDurations)
}

func (s *Session) ReadLoRaWANConfig(ctx context.Context) (*device.LoRaWANConfig, error) {
	return readAs[*device.LoRaWANConfig](ctx, s, protocol.ServiceLoRaWAN)
}

func (s *Session) ReadOTA(ctx context.Context) (*device.OTA, error) {
	return readAs[*device.OTA](ctx, s, protocol.ServiceOTA)
}

func (s *Session) ReadSystemControl(ctx context.Context) (*device.SystemControl, error) {
	return readAs[*device.SystemControl](ctx, s, protocol.ServiceSystemControl)
}

func (s *Session) ReadAlarms(ctx context.Context) (*device.Alarms, error) {
	return readAs[*device.Alarms](ctx, s, protocol.ServiceAlarms)
}

func (s *Session) ReadLogging(ctx context.Context) (*device.Logging, error) {
	return readAs[*device.Logging](ctx, s, protocol.ServiceLogging)
}

func (s *Session) WriteMeasurementDurations(ctx context.Context, patch *device.MeasurementDurationsPatch) error {
	return s.WriteService(ctx, protocol.ServiceMeasurementDurations, patch)
}

func (s *Session) WriteLoRaWANConfig(ctx context.Context, patch *device.LoRaWANConfigPatch) error {
	return s.WriteService(ctx, protocol.ServiceLoRaWAN, patch)
}

func (s *Session) WriteSystemControl(ctx context.Context, patch *device.SystemControlPatch) error {
	return s.WriteService(ctx, protocol.ServiceSystemControl, patch)
}

// SetBLEName changes the name the device advertises.
func (s *Session) SetBLEName(ctx context.Context, name string) error {
	return s.WriteSystemControl(ctx, &device.SystemControlPatch{BLEName: &name})
}

func (s *Session) SetOccupancyDetection(ctx context.Context, enabled bool) error {
	return s.WriteSystemControl(ctx, &device.SystemControlPatch{OccupancyDetection: &enabled})
}
