package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/unithub/unithub-ble/pkg/cli"
	"github.com/unithub/unithub-ble/pkg/device"
	"github.com/unithub/unithub-ble/pkg/protocol"
	"github.com/unithub/unithub-ble/pkg/session"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrInvalidTime     = errors.New("invalid time")
	ErrUnknownCommand  = errors.New("unrecognized command")
	ErrRequiresDevice  = errors.New("command requires a connected device")
	ErrRequiresAdapter = errors.New("command requires a Bluetooth adapter")
	ErrRequiresAppKey  = errors.New("command requires an AppKey name (-appkey-name)")
)

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error

// requirement is what has to be set up before a command's handler runs.
type requirement int

const (
	requiresNothing requirement = iota // Keyring-only commands
	requiresAdapter                    // Needs a session, but not a connection
	requiresDevice
)

type Command struct {
	help     string
	requires requirement
	args     []Argument
	optional []Argument
	handler  Handler
}

// ParseTimeOfDay parses an HH:MM string.
func ParseTimeOfDay(hoursAndMinutes string) (hour, minute uint8, err error) {
	components := strings.Split(hoursAndMinutes, ":")
	if len(components) != 2 {
		return 0, 0, fmt.Errorf("%w: expected HH:MM", ErrInvalidTime)
	}
	hours, err := strconv.Atoi(components[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidTime, err)
	}
	minutes, err := strconv.Atoi(components[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidTime, err)
	}
	if hours > 23 || hours < 0 || minutes > 59 || minutes < 0 {
		return 0, 0, fmt.Errorf("%w: hours or minutes outside valid range", ErrInvalidTime)
	}
	return uint8(hours), uint8(minutes), nil
}

// ParseSearchWindow parses a daily LoRaWAN search window written as HH:MM-HH:MM. The window may
// wrap past midnight.
func ParseSearchWindow(s string) (device.SearchWindow, error) {
	var w device.SearchWindow
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return w, fmt.Errorf("%w: expected HH:MM-HH:MM", ErrInvalidTime)
	}
	var err error
	if w.StartHour, w.StartMinute, err = ParseTimeOfDay(strings.TrimSpace(start)); err != nil {
		return w, err
	}
	if w.EndHour, w.EndMinute, err = ParseTimeOfDay(strings.TrimSpace(end)); err != nil {
		return w, err
	}
	return w, nil
}

// ParseDuration16 parses an unsigned 16-bit duration. An empty string means "leave unchanged" and
// returns nil.
func ParseDuration16(s string) (*uint16, error) {
	if s == "" || s == "-" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a duration between 0 and 65535", ErrCommandLineArgs, s)
	}
	d := uint16(v)
	return &d, nil
}

// ParseSwitch accepts on/off style arguments.
func ParseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "no", "0", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected on or off, got %s", ErrCommandLineArgs, s)
}

// configureFlags verifies that c contains all the information required to execute a command.
func configureFlags(c *cli.Config, commandName string) error {
	info, ok := commands[commandName]
	if !ok {
		return ErrUnknownCommand
	}
	if info.requires == requiresNothing {
		c.Flags = cli.FlagKeyring
	}
	return nil
}

func checkReadiness(commandName string, haveSession, connected bool) (*Command, error) {
	info, ok := commands[commandName]
	if !ok {
		return nil, ErrUnknownCommand
	}
	if info.requires == requiresDevice && !connected {
		return nil, ErrRequiresDevice
	}
	if info.requires == requiresAdapter && !haveSession {
		return nil, ErrRequiresAdapter
	}
	return info, nil
}

func execute(ctx context.Context, s *session.Session, config *cli.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, err := checkReadiness(args[0], s != nil, s != nil && s.Connected())
	if err != nil {
		return err
	}

	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, s, config, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func printField(name string, value any) {
	fmt.Printf("%-22s %v\n", name+":", value)
}

func formatWindow(w device.SearchWindow) string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.StartHour, w.StartMinute, w.EndHour, w.EndMinute)
}

func formatRSSI(rssi *int) string {
	if rssi == nil {
		return "?"
	}
	return strconv.Itoa(*rssi)
}

var commands = map[string]*Command{
	"scan": &Command{
		help:     "List Unit-Hub devices in range",
		requires: requiresAdapter,
		optional: []Argument{
			Argument{name: "TIMEOUT", help: "scan duration, e.g. 5s (default 10s)"},
		},
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			var timeout time.Duration
			if v, ok := args["TIMEOUT"]; ok {
				d, err := time.ParseDuration(v)
				if err != nil {
					return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
				}
				timeout = d
			}
			devices, err := s.Scan(ctx, timeout)
			if err != nil {
				return err
			}
			for _, d := range devices {
				fmt.Printf("%s\t%s\t%s dBm\n", d.ID, d.Name, formatRSSI(d.RSSI))
			}
			return nil
		},
	},
	"info": &Command{
		help:     "Print manufacturer, model and firmware information",
		requires: requiresDevice,
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			info, err := s.ReadInfo(ctx)
			if err != nil {
				return err
			}
			printField("Manufacturer", info.ManufacturerName)
			printField("Model", info.ModelNumber)
			printField("Serial number", info.SerialNumber)
			printField("Hardware revision", info.HardwareRevision)
			printField("Firmware revision", info.FirmwareRevision)
			printField("Software revision", info.SoftwareRevision)
			printField("System ID", info.SystemID)
			printField("PnP ID", info.PnPID)
			return nil
		},
	},
	"durations": &Command{
		help:     "Print sensor measurement durations (minutes)",
		requires: requiresDevice,
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			d, err := s.ReadMeasurementDurations(ctx)
			if err != nil {
				return err
			}
			printField("Gas", d.Gas)
			printField("GNSS", d.GNSS)
			printField("Power consumption", d.Power)
			return nil
		},
	},
	"set-durations": &Command{
		help:     "Set sensor measurement durations. Use - to leave a value unchanged.",
		requires: requiresDevice,
		args: []Argument{
			Argument{name: "GAS", help: "gas sensor period in minutes"},
		},
		optional: []Argument{
			Argument{name: "GNSS", help: "GNSS period in minutes"},
			Argument{name: "POWER", help: "power consumption period in minutes"},
		},
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			var (
				patch device.MeasurementDurationsPatch
				err   error
			)
			if patch.Gas, err = ParseDuration16(args["GAS"]); err != nil {
				return err
			}
			if patch.GNSS, err = ParseDuration16(args["GNSS"]); err != nil {
				return err
			}
			if patch.Power, err = ParseDuration16(args["POWER"]); err != nil {
				return err
			}
			return s.WriteMeasurementDurations(ctx, &patch)
		},
	},
	"lorawan": &Command{
		help:     "Print LoRaWAN configuration and network status",
		requires: requiresDevice,
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			c, err := s.ReadLoRaWANConfig(ctx)
			if err != nil {
				return err
			}
			printField("AppEUI", c.AppEUI)
			printField("DevEUI", c.DevEUI)
			printField("AppKey", strings.Repeat("*", len(c.AppKey)))
			printField("Search duration (s)", c.SearchDuration)
			printField("Search window", formatWindow(c.ValidSearchTimes))
			printField("Sleep duration (s)", c.SleepDuration)
			printField("Network status", c.NetworkStatus)
			return nil
		},
	},
	"set-lorawan": &Command{
		help:     "Set a LoRaWAN parameter",
		requires: requiresDevice,
		args: []Argument{
			Argument{name: "PARAMETER", help: "one of app-eui, dev-eui, app-key, search-duration, search-window, sleep-duration"},
			Argument{name: "VALUE", help: "hex identifiers (separators allowed), seconds, or HH:MM-HH:MM"},
		},
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			var patch device.LoRaWANConfigPatch
			value := args["VALUE"]
			switch strings.ToLower(args["PARAMETER"]) {
			case "app-eui":
				patch.AppEUI = &value
			case "dev-eui":
				patch.DevEUI = &value
			case "app-key":
				patch.AppKey = &value
			case "search-duration":
				d, err := ParseDuration16(value)
				if err != nil {
					return err
				}
				patch.SearchDuration = d
			case "sleep-duration":
				d, err := ParseDuration16(value)
				if err != nil {
					return err
				}
				patch.SleepDuration = d
			case "search-window":
				w, err := ParseSearchWindow(value)
				if err != nil {
					return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
				}
				patch.ValidSearchTimes = &w
			default:
				return fmt.Errorf("%w: unknown parameter %s", ErrCommandLineArgs, args["PARAMETER"])
			}
			return s.WriteLoRaWANConfig(ctx, &patch)
		},
	},
	"provision": &Command{
		help:     "Write a YAML provisioning profile to the device. The AppKey is taken from the keyring unless the profile sets it.",
		requires: requiresDevice,
		args: []Argument{
			Argument{name: "FILE", help: "profile in YAML format"},
		},
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			p, err := cli.LoadProfile(args["FILE"])
			if err != nil {
				return err
			}
			return config.Provision(ctx, s, p)
		},
	},
	"store-appkey": &Command{
		help:     "Save a LoRaWAN AppKey in the system keyring under -appkey-name",
		requires: requiresNothing,
		args: []Argument{
			Argument{name: "APPKEY", help: "32 hex digits, separators allowed"},
		},
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			if config.KeyringKeyName == "" {
				return ErrRequiresAppKey
			}
			return config.SaveAppKey(args["APPKEY"])
		},
	},
	"delete-appkey": &Command{
		help:     "Remove the LoRaWAN AppKey named by -appkey-name from the system keyring",
		requires: requiresNothing,
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			if config.KeyringKeyName == "" {
				return ErrRequiresAppKey
			}
			return config.DeleteAppKey()
		},
	},
	"system": &Command{
		help:     "Print system settings",
		requires: requiresDevice,
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			c, err := s.ReadSystemControl(ctx)
			if err != nil {
				return err
			}
			printField("BLE name", c.BLEName)
			printField("Occupancy detection", c.OccupancyDetection)
			return nil
		},
	},
	"set-name": &Command{
		help:     "Change the advertised BLE name",
		requires: requiresDevice,
		args: []Argument{
			Argument{name: "NAME", help: "new device name"},
		},
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			return s.SetBLEName(ctx, args["NAME"])
		},
	},
	"occupancy": &Command{
		help:     "Enable or disable occupancy detection",
		requires: requiresDevice,
		args: []Argument{
			Argument{name: "STATE", help: "on or off"},
		},
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			enabled, err := ParseSwitch(args["STATE"])
			if err != nil {
				return err
			}
			return s.SetOccupancyDetection(ctx, enabled)
		},
	},
	"instant-send": &Command{
		help:     "Ask the device to transmit a test uplink immediately",
		requires: requiresDevice,
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			return s.TriggerInstantSend(ctx)
		},
	},
	"factory-reset": &Command{
		help:     "Restore factory settings. The device disconnects and reboots.",
		requires: requiresDevice,
		args: []Argument{
			Argument{name: "CONFIRM", help: "must be the word yes"},
		},
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			if args["CONFIRM"] != "yes" {
				return fmt.Errorf("%w: factory reset not confirmed", ErrCommandLineArgs)
			}
			return s.FactoryReset(ctx)
		},
	},
	"ota": &Command{
		help:     "Print firmware version and update status",
		requires: requiresDevice,
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			o, err := s.ReadOTA(ctx)
			if err != nil {
				return err
			}
			printField("Firmware version", o.CurrentVersion)
			printField("Update status", o.Status)
			printField("Progress", fmt.Sprintf("%d%%", o.Progress))
			return nil
		},
	},
	"ota-start": &Command{
		help:     "Put the device into firmware update mode",
		requires: requiresDevice,
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			return s.StartOTA(ctx)
		},
	},
	"ota-upload": &Command{
		help:     "Put the device into update mode and upload a firmware image",
		requires: requiresDevice,
		args: []Argument{
			Argument{name: "FILE", help: "firmware image"},
		},
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			image, err := os.ReadFile(args["FILE"])
			if err != nil {
				return err
			}
			if err := s.StartOTA(ctx); err != nil {
				return err
			}
			last := -1
			err = s.UploadFirmware(ctx, image, func(sent, total int) {
				if pct := sent * 100 / total; pct/10 != last/10 {
					last = pct
					fmt.Fprintf(os.Stderr, "\rUploaded %d%%", pct)
				}
			})
			fmt.Fprintln(os.Stderr)
			return err
		},
	},
	"alarms": &Command{
		help:     "Print active alarms and alarm history",
		requires: requiresDevice,
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			a, err := s.ReadAlarms(ctx)
			if err != nil {
				return err
			}
			printField("Gas", a.Active.Gas())
			printField("GNSS", a.Active.GNSS())
			printField("Power", a.Active.Power())
			printField("System", a.Active.System())
			for _, e := range a.History {
				resolved := ""
				if e.Resolved {
					resolved = " (resolved)"
				}
				fmt.Printf("%s  %-8s %-8s %s%s\n", e.Timestamp.Format(time.RFC3339), e.Severity, e.Type, e.Message, resolved)
			}
			return nil
		},
	},
	"logs": &Command{
		help:     "Print recent log entries and the log files stored on the device",
		requires: requiresDevice,
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			l, err := s.ReadLogging(ctx)
			if err != nil {
				return err
			}
			for _, e := range l.CurrentLogs {
				fmt.Printf("%s  %-7s %-6s %s\n", e.Timestamp.Format(time.RFC3339), e.Level, e.Category, e.Message)
			}
			if len(l.AvailableLogFiles) > 0 {
				fmt.Println("\nLog files:")
			}
			for _, f := range l.AvailableLogFiles {
				fmt.Printf("  %s\t%d bytes\t%s\n", f.Name, f.Size, f.CreatedAt.Format(time.RFC3339))
			}
			printField("Download status", l.DownloadStatus)
			return nil
		},
	},
	"snapshot": &Command{
		help:     "Read every service and print the aggregated device state as JSON",
		requires: requiresDevice,
		handler: func(ctx context.Context, s *session.Session, config *cli.Config, args map[string]string) error {
			err := s.Refresh(ctx)
			if errors.Is(err, protocol.ErrNotConnected) || ctx.Err() != nil {
				return err
			}
			if err != nil {
				writeErr("Some services could not be read: %s", err)
			}
			return printJSON(s.Snapshot())
		},
	},
}
