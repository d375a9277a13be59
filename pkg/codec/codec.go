// Package codec converts between primitive values and the byte payloads carried by Unit-Hub
// characteristics.
//
// Integers are fixed-width little-endian. Strings are UTF-8 with no length prefix, since the
// transport frames every characteristic value. Hex strings are rendered in upper case without
// separators. Every decode failure wraps [protocol.ErrMalformedPayload] and every rejected
// input wraps [protocol.ErrInvalidValue]; nothing in this package panics on short input.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/unithub/unithub-ble/pkg/protocol"
)

func malformed(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", protocol.ErrMalformedPayload, fmt.Sprintf(format, a...))
}

func invalid(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", protocol.ErrInvalidValue, fmt.Sprintf(format, a...))
}

func need(data []byte, width int) error {
	if len(data) < width {
		return malformed("need %d bytes, got %d", width, len(data))
	}
	return nil
}

func EncodeUint8(v uint8) []byte {
	return []byte{v}
}

func DecodeUint8(data []byte) (uint8, error) {
	if err := need(data, 1); err != nil {
		return 0, err
	}
	return data[0], nil
}

func EncodeUint16(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

func DecodeUint16(data []byte) (uint16, error) {
	if err := need(data, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

func EncodeUint32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func DecodeUint32(data []byte) (uint32, error) {
	if err := need(data, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// EncodeUint encodes v using width bytes (1, 2 or 4), rejecting values that do not fit.
func EncodeUint(v uint64, width int) ([]byte, error) {
	switch width {
	case 1, 2, 4:
	default:
		return nil, invalid("unsupported integer width %d", width)
	}
	if bits := uint(8 * width); v>>bits != 0 {
		return nil, invalid("%d does not fit in %d bytes", v, width)
	}
	out := make([]byte, width)
	for i := range out {
		out[i] = byte(v >> (8 * i))
	}
	return out, nil
}

func EncodeString(s string) []byte {
	return []byte(s)
}

// DecodeString returns data as text. Trailing NUL padding is dropped.
func DecodeString(data []byte) (string, error) {
	data = bytes.TrimRight(data, "\x00")
	if !utf8.Valid(data) {
		return "", malformed("invalid UTF-8")
	}
	return string(data), nil
}

var hexSeparators = strings.NewReplacer(":", "", "-", "", " ", "")

// EncodeHex parses a hex digit string, ignoring ':' separators (and '-' or spaces), into bytes.
func EncodeHex(s string) ([]byte, error) {
	digits := hexSeparators.Replace(s)
	if len(digits)%2 != 0 {
		return nil, invalid("hex string '%s' has an odd number of digits", s)
	}
	out, err := hex.DecodeString(digits)
	if err != nil {
		return nil, invalid("'%s' is not a hex string", s)
	}
	return out, nil
}

// DecodeHex renders data as upper-case hex digits without separators.
func DecodeHex(data []byte) (string, error) {
	if len(data) == 0 {
		return "", malformed("empty hex payload")
	}
	return strings.ToUpper(hex.EncodeToString(data)), nil
}

// NormalizeHex canonicalizes a user-supplied hex string, optionally enforcing a byte length.
// A size of zero accepts any length.
func NormalizeHex(s string, size int) (string, error) {
	raw, err := EncodeHex(s)
	if err != nil {
		return "", err
	}
	if size > 0 && len(raw) != size {
		return "", invalid("expected %d bytes of hex, got %d", size, len(raw))
	}
	return strings.ToUpper(hex.EncodeToString(raw)), nil
}

func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func DecodeBool(data []byte) (bool, error) {
	if err := need(data, 1); err != nil {
		return false, err
	}
	return data[0] != 0, nil
}

// DecodeEnum8 maps a one-byte code onto its symbolic name. Codes outside symbols are malformed;
// raw numeric codes never escape this function.
func DecodeEnum8(data []byte, symbols []string) (string, error) {
	code, err := DecodeUint8(data)
	if err != nil {
		return "", err
	}
	if int(code) >= len(symbols) {
		return "", malformed("enum code %d out of range", code)
	}
	return symbols[code], nil
}

// EncodeEnum8 maps a symbolic name onto its one-byte code.
func EncodeEnum8(symbol string, symbols []string) ([]byte, error) {
	for i, s := range symbols {
		if s == symbol {
			return []byte{byte(i)}, nil
		}
	}
	return nil, invalid("'%s' is not one of %s", symbol, strings.Join(symbols, ", "))
}

// PackSearchWindow composes the four sub-fields of a LoRaWAN search window into the 32-bit
// layout expected by the device: start hour in the most significant byte, end minute in the
// least significant byte.
func PackSearchWindow(startHour, startMinute, endHour, endMinute uint8) uint32 {
	return uint32(startHour)<<24 | uint32(startMinute)<<16 | uint32(endHour)<<8 | uint32(endMinute)
}

// UnpackSearchWindow is the inverse of PackSearchWindow.
func UnpackSearchWindow(v uint32) (startHour, startMinute, endHour, endMinute uint8) {
	return uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v)
}
