package cli

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/unithub/unithub-ble/internal/log"
	"github.com/unithub/unithub-ble/pkg/device"
	"github.com/unithub/unithub-ble/pkg/session"
)

// Profile describes the settings written to a device during provisioning. Every section is
// optional, and within a section only the listed fields are written.
//
//	durations:
//	  gas: 30
//	  gnss: 60
//	lorawan:
//	  appEUI: 70B3D57ED0001234
//	  devEUI: 00:04:A3:0B:00:1C:05:30
//	  validSearchTimes: {startHour: 8, startMinute: 0, endHour: 18, endMinute: 30}
//	system:
//	  bleName: UH_LOBBY
//
// The AppKey may be given inline, but is normally taken from the keyring (see Config.AppKey).
type Profile struct {
	Durations *device.MeasurementDurationsPatch `yaml:"durations,omitempty"`
	LoRaWAN   *device.LoRaWANConfigPatch        `yaml:"lorawan,omitempty"`
	System    *device.SystemControlPatch        `yaml:"system,omitempty"`
}

// LoadProfile reads a provisioning profile from a YAML file. Unknown keys are rejected so that
// typos do not silently skip a setting.
func LoadProfile(filename string) (*Profile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", filename, err)
	}
	return &p, nil
}

// Empty reports whether p would write nothing.
func (p *Profile) Empty() bool {
	return p == nil || (p.Durations == nil && p.LoRaWAN == nil && p.System == nil)
}

// Provision writes p to the device connected to s. A LoRaWAN section without an AppKey uses the
// AppKey from the keyring when c names one.
func (c *Config) Provision(ctx context.Context, s *session.Session, p *Profile) error {
	if p.Empty() {
		return fmt.Errorf("profile is empty")
	}
	if p.LoRaWAN != nil && p.LoRaWAN.AppKey == nil && c.KeyringKeyName != "" {
		key, err := c.AppKey()
		if err != nil {
			return err
		}
		lora := *p.LoRaWAN
		lora.AppKey = &key
		p = &Profile{Durations: p.Durations, LoRaWAN: &lora, System: p.System}
	}
	if p.Durations != nil {
		log.Info("Writing measurement durations...")
		if err := s.WriteMeasurementDurations(ctx, p.Durations); err != nil {
			return err
		}
	}
	if p.LoRaWAN != nil {
		log.Info("Writing LoRaWAN configuration...")
		if err := s.WriteLoRaWANConfig(ctx, p.LoRaWAN); err != nil {
			return err
		}
	}
	if p.System != nil {
		log.Info("Writing system settings...")
		if err := s.WriteSystemControl(ctx, p.System); err != nil {
			return err
		}
	}
	return nil
}
