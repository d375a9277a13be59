package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"github.com/unithub/unithub-ble/pkg/codec"
)

const (
	keyringServiceName = "io.unithub.ble"
	keyringAppKey      = "lorawanAppKey"
	keyringDirectory   = "~/.unithub_keys"
	appKeySize         = 16
)

type backendType struct {
	config *Config
}

func (b backendType) String() string {
	if b.config == nil || len(b.config.Backend.AllowedBackends) == 0 {
		return string(keyring.InvalidBackend)
	}
	return string(b.config.Backend.AllowedBackends[0])
}

func (b backendType) Set(v string) error {
	value := keyring.BackendType(v)
	if b.config == nil {
		return fmt.Errorf("invalid backendType")
	}
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == value {
			b.config.Backend.AllowedBackends = []keyring.BackendType{name}
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage")
}

func (c *Config) getPassword(prompt string) (string, error) {
	if c.password != nil && *c.password != "" {
		return *c.password, nil
	}

	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal output available for password prompt")
		}
		w = os.Stderr
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	password := string(b)
	c.password = &password
	return password, nil
}

// openKeyring is replaced in tests.
var openKeyring = keyring.Open

func (c *Config) fullKeyName() string {
	return keyringAppKey + "." + c.KeyringKeyName
}

// AppKey loads the LoRaWAN AppKey named c.KeyringKeyName from the system keyring. The key is
// cached after it is first loaded.
func (c *Config) AppKey() (string, error) {
	if c.appKey != "" {
		return c.appKey, nil
	}
	if c.KeyringKeyName == "" {
		return "", ErrNoAppKeyName
	}
	kr, err := openKeyring(c.Backend)
	if err != nil {
		return "", err
	}
	item, err := kr.Get(c.fullKeyName())
	if err != nil {
		return "", fmt.Errorf("could not load AppKey: %w", err)
	}
	key, err := codec.NormalizeHex(string(item.Data), appKeySize)
	if err != nil {
		return "", fmt.Errorf("keyring entry %s is not an AppKey: %w", c.fullKeyName(), err)
	}
	c.appKey = key
	return key, nil
}

// SaveAppKey writes a LoRaWAN AppKey to the system keyring under c.KeyringKeyName. The key is
// stored as 32 upper-case hex digits.
func (c *Config) SaveAppKey(key string) error {
	if c.KeyringKeyName == "" {
		return ErrNoAppKeyName
	}
	normalized, err := codec.NormalizeHex(key, appKeySize)
	if err != nil {
		return err
	}
	kr, err := openKeyring(c.Backend)
	if err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{
		Key:   c.fullKeyName(),
		Label: "Unit-Hub LoRaWAN AppKey " + c.KeyringKeyName,
		Data:  []byte(normalized),
	}); err != nil {
		return fmt.Errorf("failed to enroll AppKey in keyring: %s", err)
	}
	c.appKey = normalized
	return nil
}

// DeleteAppKey removes the AppKey from the system keyring.
func (c *Config) DeleteAppKey() error {
	if c.KeyringKeyName == "" {
		return ErrNoAppKeyName
	}
	kr, err := openKeyring(c.Backend)
	if err != nil {
		return err
	}
	c.appKey = ""
	return kr.Remove(c.fullKeyName())
}
