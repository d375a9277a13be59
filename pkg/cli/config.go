/*
Package cli facilitates building command-line applications that talk to Unit-Hub devices. It
defines a [Config] type that can be used to register common command-line flags (using the Golang
flag package) and environment variable equivalents.

The package uses [keyring]'s platform-agnostic interface for storing sensitive values (LoRaWAN
AppKeys) in an OS-dependent credential store.

# Examples

	import flag

	config, err := NewConfig(FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for the device, adapter, keyring, etc.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables
	config.LoadCredentials()          // Prompt for Keyring password if needed

	// Opens the Bluetooth adapter and connects to config.DeviceID, or to the strongest Unit-Hub in
	// range if no device was configured.
	s, err := config.Connect(ctx)
	if err != nil {
		panic(err)
	}
	defer s.Close(ctx)

Use a [Flag] mask to control what [Config] fields are populated. Note that config.Flags must be set
before calling [flag.Parse] or [Config.ReadFromEnvironment]:

	config, err = NewConfig(FlagDevice | FlagBLE) // No keyring access; provisioning needs an explicit AppKey.
*/
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unithub/unithub-ble/internal/log"
	"github.com/unithub/unithub-ble/pkg/connection"
	"github.com/unithub/unithub-ble/pkg/connector"
	"github.com/unithub/unithub-ble/pkg/connector/ble"
	"github.com/unithub/unithub-ble/pkg/device"
	"github.com/unithub/unithub-ble/pkg/metrics"
	"github.com/unithub/unithub-ble/pkg/session"
)

// Environment variable names used are used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvDevice         = "UNITHUB_DEVICE"
	EnvAdapter        = "UNITHUB_ADAPTER"
	EnvScanTimeout    = "UNITHUB_SCAN_TIMEOUT"
	EnvAppKeyName     = "UNITHUB_APPKEY_NAME"
	EnvKeyringType    = "UNITHUB_KEYRING_TYPE"
	EnvKeyringPass    = "UNITHUB_KEYRING_PASSWORD"
	EnvKeyringPath    = "UNITHUB_KEYRING_PATH"
	EnvKeyringDebug   = "UNITHUB_KEYRING_DEBUG"
	EnvMetricsAddress = "UNITHUB_METRICS_ADDR"
	EnvVerbose        = "UNITHUB_VERBOSE"
)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagDevice  Flag = 1 // Enable device address option.
	FlagBLE     Flag = 2 // Enable adapter and scan options.
	FlagKeyring Flag = 4 // Enable keyring options. Required for storing AppKeys.
	FlagMetrics Flag = 8 // Enable the Prometheus endpoint option.
	FlagAll     Flag = FlagDevice | FlagBLE | FlagKeyring | FlagMetrics
)

var (
	ErrNoAppKeyName  = errors.New("AppKey name not provided")
	ErrNoDeviceFound = errors.New("no Unit-Hub device found")
	ErrKeyNotFound   = keyring.ErrKeyNotFound
)

// Config fields determine how a client reaches a Unit-Hub device.
type Config struct {
	Flags          Flag // Controls which set of environment variables/CLI flags to use.
	DeviceID       string
	BtAdapterID    string
	ScanTimeout    time.Duration
	KeyringKeyName string // Name of the LoRaWAN AppKey in the system keyring
	MetricsAddress string // Serve Prometheus metrics on this address when set
	Verbose        bool
	Backend        keyring.Config
	BackendType    backendType
	Debug          bool // Enable keyring debug messages

	password *string
	appKey   string
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	// transport is replaced in tests.
	transport func(adapterID string) (connector.Transport, error)
}

func NewConfig(flags Flag) (*Config, error) {
	c := Config{
		Flags: flags,
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
		transport: func(adapterID string) (connector.Transport, error) {
			return ble.NewAdapter(adapterID), nil
		},
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword

	return &c, nil
}

func (c *Config) RegisterCommandLineFlags() {
	if c.Flags.isSet(FlagDevice) {
		flag.StringVar(&c.DeviceID, "device", "", "Device `address`. Defaults to $UNITHUB_DEVICE, then to the strongest device in range.")
	}
	if c.Flags.isSet(FlagBLE) {
		flag.DurationVar(&c.ScanTimeout, "scan-timeout", 0, "How long to scan for devices. Defaults to $UNITHUB_SCAN_TIMEOUT or 10s.")
		c.registerCommandLineFlagsOsSpecific()
	}
	if c.Flags.isSet(FlagKeyring) {
		var names []string
		for _, name := range keyring.AvailableBackends() {
			names = append(names, string(name))
		}
		sort.Strings(names)
		flag.StringVar(&c.KeyringKeyName, "appkey-name", "", "System keyring `name` for the LoRaWAN AppKey. Defaults to $UNITHUB_APPKEY_NAME.")
		flag.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $UNITHUB_KEYRING_TYPE.")
		flag.StringVar(&c.Backend.FileDir, "keyring-file-dir", keyringDirectory, "keyring `directory` for file-backed keyring types")
		flag.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
	}
	if c.Flags.isSet(FlagMetrics) {
		flag.StringVar(&c.MetricsAddress, "metrics-addr", "", "Serve Prometheus metrics on `address` (for example :9100). Defaults to $UNITHUB_METRICS_ADDR.")
	}
}

// LoadCredentials attempts to open a keyring, prompting for a password if needed. Call this method
// before [Config.Connect] to prevent interactive prompts from counting against timeouts.
func (c *Config) LoadCredentials() error {
	if !c.Flags.isSet(FlagKeyring) || c.KeyringKeyName == "" {
		return nil
	}
	_, err := c.AppKey()
	if errors.Is(err, ErrKeyNotFound) {
		log.Debug("No AppKey named '%s' in keyring yet", c.KeyringKeyName)
		return nil
	}
	return err
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters and avoid potentially misleading
// debug log messages.
func (c *Config) ReadFromEnvironment() {
	if _, ok := os.LookupEnv(EnvVerbose); ok && !c.Verbose {
		c.Verbose = true
		log.SetLevel(log.LevelDebug)
	}
	if c.Flags.isSet(FlagDevice) && c.DeviceID == "" {
		c.DeviceID = os.Getenv(EnvDevice)
		log.Debug("Set device to '%s'", c.DeviceID)
	}
	if c.Flags.isSet(FlagBLE) {
		if c.BtAdapterID == "" {
			c.BtAdapterID = os.Getenv(EnvAdapter)
			log.Debug("Set Bluetooth adapter to '%s'", c.BtAdapterID)
		}
		if c.ScanTimeout == 0 {
			if v := os.Getenv(EnvScanTimeout); v != "" {
				if d, err := parseDuration(v); err == nil {
					c.ScanTimeout = d
					log.Debug("Set scan timeout to %s", d)
				} else {
					log.Warning("Ignoring %s: %s", EnvScanTimeout, err)
				}
			}
		}
	}
	if c.Flags.isSet(FlagKeyring) {
		if c.KeyringKeyName == "" {
			c.KeyringKeyName = os.Getenv(EnvAppKeyName)
			log.Debug("Set AppKey name to '%s'", c.KeyringKeyName)
		}
		if c.BackendType.String() == string(keyring.InvalidBackend) {
			if err := c.BackendType.Set(os.Getenv(EnvKeyringType)); err == nil {
				log.Debug("Set keyring type to '%s'", c.BackendType)
			}
		}
		if c.password == nil {
			password := os.Getenv(EnvKeyringPass)
			c.password = &password
			if len(password) > 0 {
				log.Debug("Set keyring File Password to %s", strings.Repeat("*", len("hunter2")))
			}
		}
		if c.Backend.FileDir == "" {
			c.Backend.FileDir = os.Getenv(EnvKeyringPath)
			log.Debug("Set keyring File Path to '%s'", c.Backend.FileDir)
		}
		if !c.Debug {
			_, c.Debug = os.LookupEnv(EnvKeyringDebug)
			log.Debug("Set keyring Debug Logging to '%v'", c.Debug)
		}
	}
	if c.Flags.isSet(FlagMetrics) && c.MetricsAddress == "" {
		c.MetricsAddress = os.Getenv(EnvMetricsAddress)
	}
}

// parseDuration accepts Go durations ("15s") as well as a bare number of milliseconds.
func parseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.ParseUint(v, 10, 32); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

// Metrics returns the collectors shared by every session created from c, registering them on
// first use. If c.MetricsAddress is set the collectors are also served over HTTP.
func (c *Config) Metrics() *metrics.Metrics {
	if c.metrics != nil {
		return c.metrics
	}
	c.registry = prometheus.NewRegistry()
	c.metrics = metrics.New(c.registry)
	if c.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(c.registry))
		server := &http.Server{Addr: c.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("Serving metrics on %s", c.MetricsAddress)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics endpoint failed: %s", err)
			}
		}()
	}
	return c.metrics
}

// NewSession opens the configured Bluetooth adapter and returns an unconnected session.
func (c *Config) NewSession(opts ...session.Option) (*session.Session, error) {
	transport, err := c.transport(c.BtAdapterID)
	if err != nil {
		return nil, err
	}
	var connOpts []connection.Option
	if c.ScanTimeout > 0 {
		connOpts = append(connOpts, connection.WithScanTimeout(c.ScanTimeout))
	}
	base := []session.Option{
		session.WithConnectionOptions(connOpts...),
		session.WithMetrics(c.Metrics()),
	}
	return session.New(transport, append(base, opts...)...), nil
}

// Connect opens a session and connects it to c.DeviceID. Without a device ID it scans and picks
// the device with the strongest signal.
func (c *Config) Connect(ctx context.Context, opts ...session.Option) (*session.Session, error) {
	s, err := c.NewSession(opts...)
	if err != nil {
		return nil, err
	}
	id := c.DeviceID
	if id == "" {
		log.Info("No device configured, scanning...")
		devices, err := s.Scan(ctx, c.ScanTimeout)
		if err != nil {
			s.Close(ctx)
			return nil, err
		}
		best, ok := Strongest(devices)
		if !ok {
			s.Close(ctx)
			return nil, ErrNoDeviceFound
		}
		log.Info("Selected %s (%s)", best.ID, best.Name)
		id = best.ID
	}
	log.Info("Connecting to %s...", id)
	if err := s.Connect(ctx, id); err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("failed to connect to %s: %w", id, err)
	}
	return s, nil
}

// Strongest returns the connectable device with the highest RSSI. Devices without an RSSI rank
// last.
func Strongest(devices []device.Discovered) (device.Discovered, bool) {
	var (
		best  device.Discovered
		found bool
	)
	for _, d := range devices {
		if !d.Connectable {
			continue
		}
		if !found || rssi(d) > rssi(best) {
			best, found = d, true
		}
	}
	return best, found
}

func rssi(d device.Discovered) int {
	if d.RSSI == nil {
		return -1 << 31
	}
	return *d.RSSI
}
